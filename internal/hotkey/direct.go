package hotkey

import (
	"sync"
)

// Code is a raw key code in whatever space the active direct-grab back end
// uses (evdev keycodes on Linux).
type Code int

// keyTranslator maps a parsed hotkey token to its back-end-specific code.
// Implemented separately per platform (see evdev_linux.go).
type keyTranslator func(token string) (Code, bool)

// comboMatcher tracks the set of currently pressed keys and, independently
// for every registered named combination, whether that combination is
// currently "active" (all its keys down). It mirrors the pressed-key-set
// plus per-combination latch design: a combo activates the instant its
// keys become a subset of the pressed set, and deactivates only once none
// of its keys remain pressed (so a chorded combo like ctrl+alt+r does not
// flicker off when the user lifts fingers in a different order than they
// pressed them, but it does require every key be released before it can
// re-trigger).
type comboMatcher struct {
	mu       sync.Mutex
	combos   map[string][]Code // name -> required codes
	pressed  map[Code]bool
	active   map[string]bool
	onPress  PressCallback
	onRelease ReleaseCallback
}

func newComboMatcher(onPress PressCallback, onRelease ReleaseCallback) *comboMatcher {
	return &comboMatcher{
		combos:  make(map[string][]Code),
		pressed: make(map[Code]bool),
		active:  make(map[string]bool),
		onPress: onPress, onRelease: onRelease,
	}
}

func (m *comboMatcher) addCombo(name string, codes []Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.combos[name] = codes
}

func (m *comboMatcher) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.combos = make(map[string][]Code)
	m.pressed = make(map[Code]bool)
	m.active = make(map[string]bool)
}

func isSubset(combo []Code, pressed map[Code]bool) bool {
	for _, c := range combo {
		if !pressed[c] {
			return false
		}
	}
	return true
}

func anyPressed(combo []Code, pressed map[Code]bool) bool {
	for _, c := range combo {
		if pressed[c] {
			return true
		}
	}
	return false
}

// onKeyEvent feeds one raw key press/release into the matcher, firing
// onPress/onRelease for any combo whose activation state flips as a result.
func (m *comboMatcher) onKeyEvent(code Code, isPress bool) {
	m.mu.Lock()
	var toFirePress, toFireRelease []string
	if isPress {
		m.pressed[code] = true
		for name, combo := range m.combos {
			if !m.active[name] && isSubset(combo, m.pressed) {
				m.active[name] = true
				toFirePress = append(toFirePress, name)
			}
		}
	} else {
		for name, combo := range m.combos {
			if m.active[name] && containsCode(combo, code) {
				remaining := anyPressedExcept(combo, m.pressed, code)
				if !remaining {
					m.active[name] = false
					toFireRelease = append(toFireRelease, name)
				}
			}
		}
		delete(m.pressed, code)
	}
	m.mu.Unlock()

	for _, name := range toFirePress {
		if m.onPress != nil {
			m.onPress(name)
		}
	}
	for _, name := range toFireRelease {
		if m.onRelease != nil {
			m.onRelease(name)
		}
	}
}

func containsCode(combo []Code, code Code) bool {
	for _, c := range combo {
		if c == code {
			return true
		}
	}
	return false
}

func anyPressedExcept(combo []Code, pressed map[Code]bool, except Code) bool {
	for _, c := range combo {
		if c == except {
			continue
		}
		if pressed[c] {
			return true
		}
	}
	return false
}

// DirectListener grabs raw keyboard events (evdev on Linux) and runs them
// through a comboMatcher. The event source is injected so tests can drive
// it without real hardware.
type DirectListener struct {
	matcher    *comboMatcher
	translator keyTranslator
	source     eventSource

	mu     sync.Mutex
	combos map[string][]string // name -> tokens, retained to re-translate if needed
}

// eventSource abstracts the raw key-event feed: Open starts delivering
// events to the given callback and returns once listening has begun (or
// failed); Close stops it.
type eventSource interface {
	Open(deliver func(code Code, isPress bool)) error
	Close() error
}

// NewDirectListener builds a DirectListener using the platform's native
// event source and key translator (see evdev_linux.go / evdev_other.go).
func NewDirectListener(onPress PressCallback, onRelease ReleaseCallback) *DirectListener {
	return &DirectListener{
		matcher:    newComboMatcher(onPress, onRelease),
		translator: platformKeyTranslator,
		source:     newPlatformEventSource(),
		combos:     make(map[string][]string),
	}
}

func (d *DirectListener) AddHotkey(name, hotkeyStr string) error {
	tokens, err := ParseHotkey(hotkeyStr)
	if err != nil {
		return err
	}
	codes := make([]Code, 0, len(tokens))
	for _, tok := range tokens {
		code, ok := d.translator(tok)
		if !ok {
			return &unresolvedTokenError{token: tok}
		}
		codes = append(codes, code)
	}
	d.mu.Lock()
	d.combos[name] = tokens
	d.mu.Unlock()
	d.matcher.addCombo(name, codes)
	return nil
}

func (d *DirectListener) ClearHotkeys() {
	d.mu.Lock()
	d.combos = make(map[string][]string)
	d.mu.Unlock()
	d.matcher.clear()
}

func (d *DirectListener) Start() error {
	return d.source.Open(d.matcher.onKeyEvent)
}

func (d *DirectListener) Stop() error {
	return d.source.Close()
}

type unresolvedTokenError struct{ token string }

func (e *unresolvedTokenError) Error() string {
	return "hotkey: no direct-grab mapping for token " + e.token
}
