//go:build !linux

package hotkey

import "errors"

// ErrDirectGrabUnavailable is returned on platforms without a native
// direct-grab implementation wired up (Windows and macOS both have native
// equivalents — RegisterHotKey/CGEventTap — but this module does not ship
// them; callers on those platforms should use the portal back end, or
// supply their own Listener).
var ErrDirectGrabUnavailable = errors.New("hotkey: no direct-grab backend on this platform")

func platformKeyTranslator(token string) (Code, bool) { return 0, false }

type unavailableEventSource struct{}

func (unavailableEventSource) Open(func(Code, bool)) error { return ErrDirectGrabUnavailable }
func (unavailableEventSource) Close() error                { return nil }

func newPlatformEventSource() eventSource { return unavailableEventSource{} }
