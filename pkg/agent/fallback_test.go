package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/holdtalk/holdtalk/internal/resilience"
)

type stubAgent struct {
	reply string
	err   error
}

func (s *stubAgent) Complete(context.Context, string, string, map[string]any) (string, error) {
	return s.reply, s.err
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	f := NewFallback(&stubAgent{reply: "primary"}, "primary", resilience.FallbackConfig{})
	f.AddFallback("secondary", &stubAgent{reply: "secondary"})

	got, err := f.Complete(context.Background(), "sys", "in", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestFallback_FallsBackWhenPrimaryErrors(t *testing.T) {
	f := NewFallback(&stubAgent{err: errors.New("boom")}, "primary", resilience.FallbackConfig{})
	f.AddFallback("secondary", &stubAgent{reply: "secondary"})

	got, err := f.Complete(context.Background(), "sys", "in", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want secondary", got)
	}
}
