package pipeline

import (
	"sync"
	"time"
)

// TriggerKind distinguishes the three ways a pipeline run can be started.
type TriggerKind int

const (
	// TriggerHotkey is a press observed by a hotkey listener.
	TriggerHotkey TriggerKind = iota
	// TriggerProgrammatic is a run started directly by name, not by a key.
	TriggerProgrammatic
	// TriggerTimer is a run whose completion latch fires after a fixed delay.
	TriggerTimer
)

// TriggerEvent is a one-shot signal carrying a completion latch a stage may
// wait on. It is the Go realization of the source's tagged-variant trigger:
// the Kind field selects which variant-specific fields are meaningful, and
// every variant shares the same completion semantics — the latch transitions
// false→true exactly once, never back.
type TriggerEvent struct {
	Kind      TriggerKind
	Hotkey    string    // meaningful when Kind == TriggerHotkey
	PressTime time.Time // meaningful when Kind == TriggerHotkey

	once sync.Once
	done chan struct{}
}

func newTriggerEvent(kind TriggerKind) *TriggerEvent {
	return &TriggerEvent{Kind: kind, done: make(chan struct{})}
}

// NewHotkeyTrigger returns a trigger that completes when Complete is called
// (by the listener, on key-release).
func NewHotkeyTrigger(hotkey string, pressTime time.Time) *TriggerEvent {
	t := newTriggerEvent(TriggerHotkey)
	t.Hotkey = hotkey
	t.PressTime = pressTime
	return t
}

// NewProgrammaticTrigger returns a trigger that is already complete.
func NewProgrammaticTrigger() *TriggerEvent {
	t := newTriggerEvent(TriggerProgrammatic)
	t.Complete()
	return t
}

// NewTimerTrigger returns a trigger that completes after d elapses.
func NewTimerTrigger(d time.Duration) *TriggerEvent {
	t := newTriggerEvent(TriggerTimer)
	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		<-timer.C
		t.Complete()
	}()
	return t
}

// Complete transitions the latch false→true. Calling it more than once is a
// no-op; the first call wins.
func (t *TriggerEvent) Complete() {
	t.once.Do(func() { close(t.done) })
}

// IsComplete reports whether Complete has already been called.
func (t *TriggerEvent) IsComplete() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// WaitForCompletion blocks until Complete is called or timeout elapses,
// whichever comes first. It returns true if the latch completed, false if
// the wait timed out first.
func (t *TriggerEvent) WaitForCompletion(timeout time.Duration) bool {
	if timeout <= 0 {
		return t.IsComplete()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}
