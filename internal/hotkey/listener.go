// Package hotkey implements the hotkey front end: a platform-dispatched
// global hotkey facility that reports press/release edges for one or more
// registered hotkey strings, grounded on two distinct back ends — direct
// keyboard-event grabbing (X11/evdev) and the XDG Desktop Portal
// GlobalShortcuts interface (Wayland, sandboxed).
package hotkey

import (
	"fmt"
	"strings"
)

// PressCallback and ReleaseCallback report edges for the named hotkey
// (the name a hotkey was registered under, not the hotkey string itself).
type PressCallback func(name string)
type ReleaseCallback func(name string)

// Listener is the interface every back end implements: register a set of
// named hotkeys, then start/stop delivering press/release edges.
type Listener interface {
	// AddHotkey registers hotkey (grammar below) under name. Calling this
	// after Start has undefined effect for direct-grab back ends that
	// pre-compute a matching table; callers should register all hotkeys
	// before starting.
	AddHotkey(name, hotkey string) error
	// ClearHotkeys removes all registered hotkeys.
	ClearHotkeys()
	// Start begins delivering press/release callbacks.
	Start() error
	// Stop halts delivery and releases any OS-level resources (grabbed
	// devices, portal sessions). Safe to call on a listener that was never
	// started.
	Stop() error
}

// Hotkey grammar: tokens separated by "+". A token is either a special key
// name wrapped in angle brackets (e.g. "<ctrl>", "<pause>") or a single
// printable character (a letter or digit). Whitespace around tokens and
// around "+" is ignored. Matching is case-insensitive.
//
// Examples: "<pause>", "<ctrl>+<alt>+r", "<super>+<space>".

// ParseHotkey splits a hotkey string into its normalized token list and
// validates every token is recognized, without binding to any particular
// back end's key-code space. Concrete back ends re-resolve these tokens
// into their own code space (evdev keycodes, portal trigger strings).
func ParseHotkey(hotkey string) ([]string, error) {
	parts := strings.Split(hotkey, "+")
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		tok := strings.ToLower(strings.TrimSpace(part))
		if tok == "" {
			continue
		}
		if !isValidToken(tok) {
			return nil, fmt.Errorf("hotkey: unrecognized token %q in %q", tok, hotkey)
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("hotkey: empty hotkey string")
	}
	return tokens, nil
}

func isValidToken(tok string) bool {
	if strings.HasPrefix(tok, "<") && strings.HasSuffix(tok, ">") && len(tok) > 2 {
		_, ok := specialKeyNames[tok]
		return ok
	}
	return len([]rune(tok)) == 1
}

// specialKeyNames is the set of recognized "<name>" tokens, shared by every
// back end's own translation table.
var specialKeyNames = map[string]bool{
	"<pause>": true, "<break>": true, "<esc>": true, "<escape>": true,
	"<tab>": true, "<caps_lock>": true, "<space>": true, "<enter>": true,
	"<return>": true, "<backspace>": true, "<delete>": true, "<insert>": true,
	"<home>": true, "<end>": true, "<page_up>": true, "<page_down>": true,
	"<up>": true, "<down>": true, "<left>": true, "<right>": true,
	"<shift>": true, "<shift_l>": true, "<shift_r>": true,
	"<ctrl>": true, "<ctrl_l>": true, "<ctrl_r>": true,
	"<alt>": true, "<alt_l>": true, "<alt_r>": true, "<alt_gr>": true,
	"<cmd>": true, "<cmd_l>": true, "<cmd_r>": true,
	"<super>": true, "<super_l>": true, "<super_r>": true,
	"<f1>": true, "<f2>": true, "<f3>": true, "<f4>": true, "<f5>": true,
	"<f6>": true, "<f7>": true, "<f8>": true, "<f9>": true, "<f10>": true,
	"<f11>": true, "<f12>": true,
	"<print_screen>": true, "<scroll_lock>": true, "<num_lock>": true,
	"<media_play_pause>": true, "<media_volume_mute>": true,
	"<media_volume_down>": true, "<media_volume_up>": true,
	"<media_previous>": true, "<media_next>": true,
}
