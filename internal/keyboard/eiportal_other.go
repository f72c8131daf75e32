//go:build !linux

package keyboard

import (
	"context"
	"errors"
)

// ErrEIPortalUnavailable is returned on platforms without the XDG
// RemoteDesktop/EI portal (Wayland-specific, Linux compositors only).
var ErrEIPortalUnavailable = errors.New("keyboard: EI-portal backend is only available on Linux")

// EIPortalBackend is a no-op stand-in on non-Linux platforms so callers can
// still reference the type; auto resolution never selects it there (see
// dispatcher.go's resolveAuto), and an explicit extended-input-portal
// preference gets ErrEIPortalUnavailable from TypeText.
type EIPortalBackend struct{}

// NewEIPortalBackend returns a backend whose TypeText always fails.
func NewEIPortalBackend(tokenPath string) *EIPortalBackend {
	return &EIPortalBackend{}
}

func (b *EIPortalBackend) TypeText(ctx context.Context, text string) error {
	return ErrEIPortalUnavailable
}
