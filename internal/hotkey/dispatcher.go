package hotkey

import (
	"github.com/holdtalk/holdtalk/internal/platform"
)

// NewListener builds the Listener appropriate for the current platform:
// direct-grab on non-Linux and Linux/X11, the GlobalShortcuts portal on
// Linux/Wayland. Unlike keyboard.Dispatcher, a process only ever runs one
// hotkey listener (there is no per-call preference — the hotkey front end
// is fixed for the process lifetime once hotkeys are registered).
func NewListener(onPress PressCallback, onRelease ReleaseCallback) Listener {
	info := platform.Detect()
	if info.OS == "linux" && info.DisplayServer == platform.DisplayServerWayland {
		return NewPortalListener(onPress, onRelease)
	}
	return NewDirectListener(onPress, onRelease)
}
