// Package pipeline implements the stage registry, resource arbiter, pipeline
// manager and executor that together form the runtime core: a typed,
// resource-locked, concurrent stage executor.
package pipeline

import "sync"

// Resource names an exclusive capability that a stage may require for the
// duration of a run. The set is closed; new members must be added here.
type Resource int

const (
	// ResourceAudioInput is held while a stage is capturing from a microphone.
	ResourceAudioInput Resource = iota
	// ResourceKeyboard is held while a stage is injecting synthetic keystrokes.
	ResourceKeyboard
	// ResourceNetwork is held while a stage performs a network call that must
	// not be interleaved with another run's network call (rarely needed; most
	// backends tolerate concurrent use and do not declare this resource).
	ResourceNetwork
	// ResourceFilesystem guards stages that write to a shared, non-run-scoped
	// location on disk.
	ResourceFilesystem
)

func (r Resource) String() string {
	switch r {
	case ResourceAudioInput:
		return "AUDIO_INPUT"
	case ResourceKeyboard:
		return "KEYBOARD"
	case ResourceNetwork:
		return "NETWORK"
	case ResourceFilesystem:
		return "FILESYSTEM"
	default:
		return "UNKNOWN_RESOURCE"
	}
}

// ResourceSet is an unordered collection of Resource tags.
type ResourceSet map[Resource]struct{}

// NewResourceSet builds a ResourceSet from the given resources.
func NewResourceSet(resources ...Resource) ResourceSet {
	set := make(ResourceSet, len(resources))
	for _, r := range resources {
		set[r] = struct{}{}
	}
	return set
}

// Union returns a new set containing every resource in s or other.
func (s ResourceSet) Union(other ResourceSet) ResourceSet {
	out := make(ResourceSet, len(s)+len(other))
	for r := range s {
		out[r] = struct{}{}
	}
	for r := range other {
		out[r] = struct{}{}
	}
	return out
}

// Arbiter grants exclusive, multi-resource locks to pipeline runs without
// deadlock. All operations execute inside a single critical section guarding
// two maps: resource → holder run id, and holder run id → held resources.
type Arbiter struct {
	mu      sync.Mutex
	holders map[Resource]string
	byRun   map[string]ResourceSet
}

// NewArbiter returns an Arbiter with no resources held.
func NewArbiter() *Arbiter {
	return &Arbiter{
		holders: make(map[Resource]string),
		byRun:   make(map[string]ResourceSet),
	}
}

// Acquire atomically grants the entire resource set to runID, or grants
// nothing. It never blocks: if any requested resource is currently held by a
// different run id, it returns false immediately. Acquire never panics;
// contention is reported purely through the boolean result.
func (a *Arbiter) Acquire(runID string, resources ResourceSet) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for r := range resources {
		if holder, held := a.holders[r]; held && holder != runID {
			return false
		}
	}
	if _, exists := a.byRun[runID]; !exists {
		a.byRun[runID] = make(ResourceSet, len(resources))
	}
	for r := range resources {
		a.holders[r] = runID
		a.byRun[runID][r] = struct{}{}
	}
	return true
}

// Release frees every resource currently attributed to runID. It is
// idempotent; releasing an unknown run id is a no-op.
func (a *Arbiter) Release(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	held, ok := a.byRun[runID]
	if !ok {
		return
	}
	for r := range held {
		if a.holders[r] == runID {
			delete(a.holders, r)
		}
	}
	delete(a.byRun, runID)
}

// BlockedBy reports which of the given resources are currently held by some
// run (diagnostic only — does not reveal which run holds them).
func (a *Arbiter) BlockedBy(resources ResourceSet) ResourceSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	blocked := make(ResourceSet)
	for r := range resources {
		if _, held := a.holders[r]; held {
			blocked[r] = struct{}{}
		}
	}
	return blocked
}

// HeldBy reports the resources currently attributed to runID. Used by tests
// to assert the finalizer released everything.
func (a *Arbiter) HeldBy(runID string) ResourceSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	held, ok := a.byRun[runID]
	if !ok {
		return nil
	}
	out := make(ResourceSet, len(held))
	for r := range held {
		out[r] = struct{}{}
	}
	return out
}
