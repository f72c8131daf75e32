// Package keyboard implements the virtual-keyboard back end: a
// platform-dispatched typing facility with an injection protocol for Wayland
// (Extended Input via the RemoteDesktop portal, or the wlroots text-input
// protocol) and character-by-character injection elsewhere.
package keyboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/holdtalk/holdtalk/internal/platform"
)

// Backend exposes the single call every keyboard back end supports.
// Back-end calls are serialized implicitly by the caller holding the
// KEYBOARD resource lock; implementations need not be internally
// thread-safe.
type Backend interface {
	TypeText(ctx context.Context, text string) error
}

// Preference names an explicit back-end choice, or "auto" to defer to the
// platform-detection table.
type Preference string

const (
	PreferenceAuto     Preference = "auto"
	PreferenceDirect   Preference = "direct"
	PreferenceWlroots  Preference = "wlroots-text"
	PreferenceEIPortal Preference = "extended-input-portal"
)

// ErrNoBackendAvailable is returned by Resolve when the requested (or
// auto-selected) back end has no concrete implementation wired up.
var ErrNoBackendAvailable = errors.New("keyboard: no backend available")

// Dispatcher chooses which Backend handles a given TypeText call, per the
// platform / display-server table:
//
//	Non-Linux                                          → direct
//	Linux X11                                          → direct
//	Linux Wayland, EI-capable portal                   → eiportal
//	Linux Wayland, wlroots-family compositor            → wlroots
//	Linux Wayland, otherwise                            → eiportal if present, else wlroots
type Dispatcher struct {
	Direct   Backend
	Wlroots  Backend
	EIPortal Backend

	// detect is overridable in tests.
	detect func() platform.Info
}

// NewDispatcher builds a Dispatcher with the given concrete backends. Any of
// them may be nil if that back end could not be constructed on this host
// (e.g., no wlroots text-injection tool found); Resolve surfaces
// ErrNoBackendAvailable if the chosen one is nil.
func NewDispatcher(direct, wlroots, eiportal Backend) *Dispatcher {
	return &Dispatcher{Direct: direct, Wlroots: wlroots, EIPortal: eiportal, detect: platform.Detect}
}

// Resolve picks the Backend to use for pref, given the current platform.
func (d *Dispatcher) Resolve(pref Preference) (Backend, error) {
	if pref == "" {
		pref = PreferenceAuto
	}

	switch pref {
	case PreferenceDirect:
		return nonNil(d.Direct)
	case PreferenceWlroots:
		return nonNil(d.Wlroots)
	case PreferenceEIPortal:
		return nonNil(d.EIPortal)
	case PreferenceAuto:
		return d.resolveAuto()
	default:
		return nil, fmt.Errorf("keyboard: unknown backend preference %q", pref)
	}
}

func (d *Dispatcher) resolveAuto() (Backend, error) {
	info := d.detect()

	if info.OS != "linux" {
		return nonNil(d.Direct)
	}
	if info.DisplayServer == platform.DisplayServerX11 {
		return nonNil(d.Direct)
	}
	if info.DisplayServer != platform.DisplayServerWayland {
		return nonNil(d.Direct)
	}

	switch info.Compositor {
	case platform.CompositorWlroots:
		return nonNil(d.Wlroots)
	case platform.CompositorGNOME, platform.CompositorKDE:
		return nonNil(d.EIPortal)
	default:
		if info.PortalAvailable && d.EIPortal != nil {
			return d.EIPortal, nil
		}
		return nonNil(d.Wlroots)
	}
}

func nonNil(b Backend) (Backend, error) {
	if b == nil {
		return nil, ErrNoBackendAvailable
	}
	return b, nil
}

// TypeText resolves the back end for pref and forwards text to it.
func (d *Dispatcher) TypeText(ctx context.Context, text string, pref Preference) error {
	backend, err := d.Resolve(pref)
	if err != nil {
		return err
	}
	return backend.TypeText(ctx, text)
}
