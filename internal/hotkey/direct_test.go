package hotkey

import "testing"

func TestComboMatcherSingleKeyLatch(t *testing.T) {
	var pressed, released []string
	m := newComboMatcher(
		func(name string) { pressed = append(pressed, name) },
		func(name string) { released = append(released, name) },
	)
	m.addCombo("pause", []Code{119})

	m.onKeyEvent(119, true)
	if len(pressed) != 1 || pressed[0] != "pause" {
		t.Fatalf("pressed = %v", pressed)
	}

	m.onKeyEvent(119, false)
	if len(released) != 1 || released[0] != "pause" {
		t.Fatalf("released = %v", released)
	}
}

func TestComboMatcherChordRequiresAllKeys(t *testing.T) {
	var pressed []string
	m := newComboMatcher(func(name string) { pressed = append(pressed, name) }, nil)
	m.addCombo("save", []Code{29, 56, 31}) // ctrl+alt+s

	m.onKeyEvent(29, true) // ctrl only
	if len(pressed) != 0 {
		t.Fatalf("combo should not fire on partial chord, got %v", pressed)
	}
	m.onKeyEvent(56, true) // + alt
	if len(pressed) != 0 {
		t.Fatalf("combo should not fire on partial chord, got %v", pressed)
	}
	m.onKeyEvent(31, true) // + s, now complete
	if len(pressed) != 1 || pressed[0] != "save" {
		t.Fatalf("pressed = %v", pressed)
	}
}

func TestComboMatcherNoDoubleFireWhileHeld(t *testing.T) {
	var pressed []string
	m := newComboMatcher(func(name string) { pressed = append(pressed, name) }, nil)
	m.addCombo("pause", []Code{119})

	m.onKeyEvent(119, true)
	m.onKeyEvent(119, true) // OS key-repeat: still "pressed", no new press event
	if len(pressed) != 1 {
		t.Fatalf("expected exactly one press callback, got %d", len(pressed))
	}
}

func TestComboMatcherReleaseRequiresAllKeysUp(t *testing.T) {
	var released []string
	m := newComboMatcher(nil, func(name string) { released = append(released, name) })
	m.addCombo("save", []Code{29, 56, 31})

	m.onKeyEvent(29, true)
	m.onKeyEvent(56, true)
	m.onKeyEvent(31, true)

	m.onKeyEvent(31, false) // release 's' only
	if len(released) != 0 {
		t.Fatalf("combo should stay latched while ctrl+alt remain down, got %v", released)
	}
	m.onKeyEvent(29, false)
	if len(released) != 0 {
		t.Fatalf("combo should stay latched while alt remains down, got %v", released)
	}
	m.onKeyEvent(56, false)
	if len(released) != 1 || released[0] != "save" {
		t.Fatalf("released = %v", released)
	}
}

func TestComboMatcherIndependentCombos(t *testing.T) {
	var pressed []string
	m := newComboMatcher(func(name string) { pressed = append(pressed, name) }, nil)
	m.addCombo("a", []Code{30})
	m.addCombo("b", []Code{48})

	m.onKeyEvent(30, true)
	m.onKeyEvent(48, true)

	if len(pressed) != 2 {
		t.Fatalf("expected both combos to fire independently, got %v", pressed)
	}
}

func TestComboMatcherClear(t *testing.T) {
	var pressed []string
	m := newComboMatcher(func(name string) { pressed = append(pressed, name) }, nil)
	m.addCombo("pause", []Code{119})
	m.clear()
	m.onKeyEvent(119, true)
	if len(pressed) != 0 {
		t.Fatalf("expected no combos after clear, got %v", pressed)
	}
}
