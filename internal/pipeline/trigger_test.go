package pipeline

import (
	"testing"
	"time"
)

func TestTriggerEvent_ProgrammaticIsImmediatelyComplete(t *testing.T) {
	tr := NewProgrammaticTrigger()
	if !tr.IsComplete() {
		t.Fatal("expected programmatic trigger to be complete immediately")
	}
}

func TestTriggerEvent_HotkeyCompletesOnCall(t *testing.T) {
	tr := NewHotkeyTrigger("<pause>", time.Now())
	if tr.IsComplete() {
		t.Fatal("expected hotkey trigger to start incomplete")
	}
	tr.Complete()
	if !tr.IsComplete() {
		t.Fatal("expected hotkey trigger to be complete after Complete()")
	}
}

func TestTriggerEvent_CompleteIsIdempotent(t *testing.T) {
	tr := NewHotkeyTrigger("<pause>", time.Now())
	tr.Complete()
	tr.Complete() // must not panic (double close)
	if !tr.IsComplete() {
		t.Fatal("expected trigger to remain complete")
	}
}

func TestTriggerEvent_TimerCompletesAfterDuration(t *testing.T) {
	tr := NewTimerTrigger(20 * time.Millisecond)
	if tr.IsComplete() {
		t.Fatal("expected timer trigger to start incomplete")
	}
	if !tr.WaitForCompletion(200 * time.Millisecond) {
		t.Fatal("expected timer trigger to complete within timeout")
	}
}

func TestTriggerEvent_WaitForCompletionTimesOut(t *testing.T) {
	tr := NewHotkeyTrigger("<pause>", time.Now())
	if tr.WaitForCompletion(10 * time.Millisecond) {
		t.Fatal("expected WaitForCompletion to time out before Complete is called")
	}
	tr.Complete()
	if !tr.WaitForCompletion(time.Second) {
		t.Fatal("expected WaitForCompletion to succeed after Complete")
	}
}

func TestContext_CancelRequestedTransitionsOnce(t *testing.T) {
	c := NewContext(nil, nil, nil)
	if c.CancelRequested() {
		t.Fatal("expected fresh context to not be cancelled")
	}
	c.RequestCancel()
	c.RequestCancel() // idempotent
	if !c.CancelRequested() {
		t.Fatal("expected context to be cancelled")
	}
}

func TestContext_WaitCancelRespectsTimeout(t *testing.T) {
	c := NewContext(nil, nil, nil)
	if c.WaitCancel(10 * time.Millisecond) {
		t.Fatal("expected WaitCancel to time out without cancellation")
	}
	c.RequestCancel()
	if !c.WaitCancel(time.Second) {
		t.Fatal("expected WaitCancel to return true once cancelled")
	}
}

func TestContext_NilIconDefaultsToNoop(t *testing.T) {
	c := NewContext(nil, nil, nil)
	// Must not panic.
	c.Icon.SetIcon("idle")
}
