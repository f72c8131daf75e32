package hotkey

import "testing"

func TestParseHotkeySingleSpecial(t *testing.T) {
	tokens, err := ParseHotkey("<pause>")
	if err != nil {
		t.Fatalf("ParseHotkey: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "<pause>" {
		t.Fatalf("tokens = %v", tokens)
	}
}

func TestParseHotkeyCombo(t *testing.T) {
	tokens, err := ParseHotkey("<ctrl>+<alt>+R")
	if err != nil {
		t.Fatalf("ParseHotkey: %v", err)
	}
	want := []string{"<ctrl>", "<alt>", "r"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestParseHotkeyRejectsUnknownSpecial(t *testing.T) {
	if _, err := ParseHotkey("<not_a_key>"); err == nil {
		t.Fatal("expected error for unrecognized special key")
	}
}

func TestParseHotkeyRejectsMultiCharToken(t *testing.T) {
	if _, err := ParseHotkey("ctrl+r"); err == nil {
		t.Fatal("expected error: bare \"ctrl\" is not a valid single-character token")
	}
}

func TestParseHotkeyRejectsEmpty(t *testing.T) {
	if _, err := ParseHotkey(""); err == nil {
		t.Fatal("expected error for empty hotkey string")
	}
}

func TestConvertHotkeyFormat(t *testing.T) {
	cases := []struct {
		tokens []string
		want   string
	}{
		{[]string{"<pause>"}, "Pause"},
		{[]string{"<ctrl>", "<alt>", "r"}, "Control+Alt+R"},
		{[]string{"<super>", "space"}, "Super+SPACE"},
	}
	for _, c := range cases {
		got := convertHotkeyFormat(c.tokens)
		if got != c.want {
			t.Errorf("convertHotkeyFormat(%v) = %q, want %q", c.tokens, got, c.want)
		}
	}
}
