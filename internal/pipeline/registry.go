package pipeline

import "sync"

// Registry holds typed stage definitions keyed by stage-class name and
// validates ordered stage lists against those definitions. Registration is
// monotonic and expected to complete before any pipeline is loaded; lookups
// and validation are pure functions of registry state at the time they run.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]StageDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]StageDefinition)}
}

// Register adds def under def.Name. It fails if the name is already taken.
func (r *Registry) Register(def StageDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return &ValidationError{Stage: def.Name, Err: ErrStageAlreadyRegistered}
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition registered under name, or ErrStageNotRegistered.
func (r *Registry) Lookup(name string) (StageDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return StageDefinition{}, &ValidationError{Stage: name, Err: ErrStageNotRegistered}
	}
	return def, nil
}

// Names returns every registered stage-class name, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	return names
}

// Validate fails if names is empty, if any name is unregistered, or if any
// pair of adjacent stages has a type mismatch (output of i != input of i+1).
func (r *Registry) Validate(names []string) error {
	if len(names) == 0 {
		return ErrEmptyPipeline
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]StageDefinition, len(names))
	for i, name := range names {
		def, ok := r.defs[name]
		if !ok {
			return &ValidationError{Index: i, Stage: name, Err: ErrStageNotRegistered}
		}
		defs[i] = def
	}

	for i := 1; i < len(defs); i++ {
		if defs[i-1].OutputType != defs[i].InputType {
			return &ValidationError{
				Index: i,
				Stage: defs[i].Name,
				Err:   ErrTypeMismatch,
			}
		}
	}
	return nil
}

// RequiredResources returns the union of every named stage's declared
// required resources. Unknown names are silently skipped; callers are
// expected to have already validated the name list.
func (r *Registry) RequiredResources(names []string) ResourceSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	union := make(ResourceSet)
	for _, name := range names {
		def, ok := r.defs[name]
		if !ok {
			continue
		}
		for res := range def.RequiredResources {
			union[res] = struct{}{}
		}
	}
	return union
}
