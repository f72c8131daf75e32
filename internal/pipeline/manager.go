package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrHotkeyConflict is returned by Load when two enabled pipelines share
	// a hotkey.
	ErrHotkeyConflict = errors.New("pipeline: duplicate hotkey among enabled pipelines")
	// ErrPipelineNotFound is returned by TriggerByName/TriggerByHotkey for an
	// unknown name or hotkey.
	ErrPipelineNotFound = errors.New("pipeline: no such pipeline")
	// ErrPipelineDisabled is returned when triggering a pipeline whose
	// Enabled flag is false.
	ErrPipelineDisabled = errors.New("pipeline: pipeline is disabled")
	// ErrBothClassKeysSet is returned when a stage config names both
	// "class" and "stage_class" for the same named instance.
	ErrBothClassKeysSet = errors.New("pipeline: stage config sets both class and stage_class")
)

// StageConfigEntry is one entry of the stage_configs.<Name> section: either
// a direct class default (no "class"/"stage_class" key, Name equals the
// class) or a named instance (Class selects the stage class explicitly).
type StageConfigEntry struct {
	// Class is the resolved stage-class name for this entry, taken from a
	// "class" or "stage_class" key. Empty when this entry is a direct class
	// default (Name itself is the class name).
	Class  string
	Config map[string]any
}

// PipelineSpec is the raw, as-configured shape of one pipelines[] entry,
// before stage-reference resolution.
type PipelineSpec struct {
	Name    string
	Enabled bool
	Hotkey  string
	Stages  []string
}

// resolveStages implements the §4.3 stage-reference resolution rules:
//  1. If the name is a key in stageConfigs and that entry carries a resolved
//     Class, use that class with the instance's config.
//  2. Else if the name itself is a key in stageConfigs, use the name as the
//     class, merged with its default config.
//  3. Else treat the name as a class with an empty config.
func resolveStages(names []string, stageConfigs map[string]StageConfigEntry) ([]StageRef, error) {
	refs := make([]StageRef, len(names))
	for i, name := range names {
		entry, ok := stageConfigs[name]
		switch {
		case ok && entry.Class != "":
			refs[i] = StageRef{Name: entry.Class, Config: entry.Config}
		case ok:
			refs[i] = StageRef{Name: name, Config: entry.Config}
		default:
			refs[i] = StageRef{Name: name, Config: map[string]any{}}
		}
	}
	return refs, nil
}

// Manager owns loaded pipeline definitions and the hotkey→name map, and
// dispatches runs through its Executor.
type Manager struct {
	registry *Registry
	executor *Executor

	mu          sync.RWMutex
	byName      map[string]*Definition
	byHotkey    map[string]string
	metadata    map[string]any
	icon        IconController
}

// NewManager builds a Manager backed by registry and executor.
func NewManager(registry *Registry, executor *Executor, metadata map[string]any, icon IconController) *Manager {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Manager{
		registry: registry,
		executor: executor,
		byName:   make(map[string]*Definition),
		byHotkey: make(map[string]string),
		metadata: metadata,
		icon:     icon,
	}
}

// Load parses specs and stageConfigs into the manager's pipeline set,
// replacing any previously loaded set only if every pipeline validates.
// Fails loudly (returns an aggregate error via errors.Join) on: a hotkey
// collision among enabled pipelines, an unresolvable stage reference, or a
// type-chain mismatch.
func (m *Manager) Load(specs []PipelineSpec, stageConfigs map[string]StageConfigEntry) error {
	byName := make(map[string]*Definition, len(specs))
	byHotkey := make(map[string]string, len(specs))
	var errs []error

	for _, spec := range specs {
		refs, err := resolveStages(spec.Stages, stageConfigs)
		if err != nil {
			errs = append(errs, fmt.Errorf("pipeline %q: %w", spec.Name, err))
			continue
		}

		names := make([]string, len(refs))
		for i, r := range refs {
			names[i] = r.Name
		}
		if err := m.registry.Validate(names); err != nil {
			errs = append(errs, fmt.Errorf("pipeline %q: %w", spec.Name, err))
			continue
		}

		def := &Definition{Name: spec.Name, Enabled: spec.Enabled, Hotkey: spec.Hotkey, Stages: refs}
		byName[spec.Name] = def

		if spec.Enabled {
			if existing, dup := byHotkey[spec.Hotkey]; dup {
				errs = append(errs, fmt.Errorf("%w: %q and %q both use %q", ErrHotkeyConflict, existing, spec.Name, spec.Hotkey))
				continue
			}
			byHotkey[spec.Hotkey] = spec.Name
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	m.mu.Lock()
	m.byName = byName
	m.byHotkey = byHotkey
	m.mu.Unlock()
	return nil
}

// TriggerByName starts pipeline name. Returns ErrPipelineNotFound,
// ErrPipelineDisabled, or ("", nil) if the executor refuses the dispatch
// (resource contention, or the executor is shutting down).
func (m *Manager) TriggerByName(ctx context.Context, name string, trigger *TriggerEvent) (string, error) {
	m.mu.RLock()
	def, ok := m.byName[name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrPipelineNotFound, name)
	}
	if !def.Enabled {
		return "", fmt.Errorf("%w: %q", ErrPipelineDisabled, name)
	}
	if trigger == nil {
		trigger = NewProgrammaticTrigger()
	}
	runID, ok := m.executor.Execute(ctx, def, trigger, m.metadata, m.icon)
	if !ok {
		return "", nil
	}
	return runID, nil
}

// TriggerByHotkey resolves hotkey through the current hotkey→name map and
// delegates to TriggerByName.
func (m *Manager) TriggerByHotkey(ctx context.Context, hotkey string, trigger *TriggerEvent) (string, error) {
	m.mu.RLock()
	name, ok := m.byHotkey[hotkey]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: hotkey %q", ErrPipelineNotFound, hotkey)
	}
	return m.TriggerByName(ctx, name, trigger)
}

// ListPipelines returns every loaded pipeline's name.
func (m *Manager) ListPipelines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for n := range m.byName {
		names = append(names, n)
	}
	return names
}

// ListEnabledPipelines returns the names of every loaded enabled pipeline.
func (m *Manager) ListEnabledPipelines() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.byName))
	for n, def := range m.byName {
		if def.Enabled {
			names = append(names, n)
		}
	}
	return names
}

// Shutdown delegates to the executor.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.executor.Shutdown(timeout)
}
