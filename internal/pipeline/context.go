package pipeline

import (
	"sync"
	"time"
)

// IconController abstracts the tray-icon state machine the running pipeline
// drives (idle / recording / processing). A nil-safe no-op implementation is
// used when no tray UI is wired up, since the icon itself is out of scope.
type IconController interface {
	SetIcon(state string)
}

// NoopIconController implements IconController by discarding every update.
type NoopIconController struct{}

// SetIcon is a no-op.
func (NoopIconController) SetIcon(string) {}

// Context is the per-run state a stage's Execute method can read or mutate.
// It is visible only to the one run that created it, carries the current
// stage's config (swapped in by the executor before each Execute call), and
// offers cooperative cancellation.
type Context struct {
	// Config holds the current stage's configuration mapping. The executor
	// installs it immediately before invoking that stage's Execute method.
	Config map[string]any

	// Icon drives tray-icon state transitions. Never nil.
	Icon IconController

	// Trigger is the TriggerEvent that started this run. Nil for runs
	// started without one (though in practice every run gets at least a
	// TriggerProgrammatic trigger from the manager).
	Trigger *TriggerEvent

	// Metadata is shared, per-run data threaded to every stage's factory
	// (e.g., a handle to the audio source or STT backend).
	Metadata map[string]any

	mu        sync.Mutex
	cancelled bool
	cancelCh  chan struct{}
}

// NewContext builds a fresh per-run Context. icon may be nil, in which case
// a NoopIconController is installed.
func NewContext(icon IconController, trigger *TriggerEvent, metadata map[string]any) *Context {
	if icon == nil {
		icon = NoopIconController{}
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Context{
		Icon:     icon,
		Trigger:  trigger,
		Metadata: metadata,
		cancelCh: make(chan struct{}),
	}
}

// RequestCancel transitions cancel_requested false→true exactly once.
// Cancellation is cooperative: stages are expected, not required, to observe
// it at natural points such as loop heads or after external calls.
func (c *Context) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.cancelCh)
}

// CancelRequested reports whether RequestCancel has been called.
func (c *Context) CancelRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// WaitCancel blocks until cancellation is requested or timeout elapses,
// whichever comes first. Used by the recording stage when it has no trigger
// event to wait on instead.
func (c *Context) WaitCancel(timeout time.Duration) bool {
	c.mu.Lock()
	ch := c.cancelCh
	c.mu.Unlock()

	if timeout <= 0 {
		return c.CancelRequested()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
