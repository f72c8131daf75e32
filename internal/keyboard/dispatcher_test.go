package keyboard

import (
	"context"
	"testing"

	"github.com/holdtalk/holdtalk/internal/platform"
)

type stubBackend struct {
	name string
	last string
	err  error
}

func (s *stubBackend) TypeText(ctx context.Context, text string) error {
	s.last = text
	return s.err
}

func TestDispatcher_ExplicitPreference(t *testing.T) {
	direct := &stubBackend{name: "direct"}
	wlr := &stubBackend{name: "wlroots"}
	d := NewDispatcher(direct, wlr, nil)

	if err := d.TypeText(context.Background(), "hi", PreferenceWlroots); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wlr.last != "hi" {
		t.Fatalf("expected wlroots backend to receive text, got direct=%q wlroots=%q", direct.last, wlr.last)
	}
}

func TestDispatcher_AutoNonLinuxUsesDirect(t *testing.T) {
	direct := &stubBackend{}
	d := NewDispatcher(direct, nil, nil)
	d.detect = func() platform.Info { return platform.Info{OS: "windows"} }

	if err := d.TypeText(context.Background(), "abc", PreferenceAuto); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if direct.last != "abc" {
		t.Fatal("expected direct backend to be used on non-Linux")
	}
}

func TestDispatcher_AutoWlrootsCompositor(t *testing.T) {
	wlr := &stubBackend{}
	d := NewDispatcher(nil, wlr, nil)
	d.detect = func() platform.Info {
		return platform.Info{OS: "linux", DisplayServer: platform.DisplayServerWayland, Compositor: platform.CompositorWlroots}
	}
	if err := d.TypeText(context.Background(), "x", PreferenceAuto); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcher_AutoGnomeUsesEIPortal(t *testing.T) {
	ei := &stubBackend{}
	d := NewDispatcher(nil, nil, ei)
	d.detect = func() platform.Info {
		return platform.Info{OS: "linux", DisplayServer: platform.DisplayServerWayland, Compositor: platform.CompositorGNOME}
	}
	if err := d.TypeText(context.Background(), "y", PreferenceAuto); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ei.last != "y" {
		t.Fatal("expected EI-portal backend on GNOME")
	}
}

func TestDispatcher_MissingBackendIsError(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	d.detect = func() platform.Info { return platform.Info{OS: "windows"} }
	if err := d.TypeText(context.Background(), "z", PreferenceAuto); err == nil {
		t.Fatal("expected ErrNoBackendAvailable")
	}
}
