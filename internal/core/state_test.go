package core

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"start", CommandStart},
		{"STOP", CommandStop},
		{" Exit ", CommandExit},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		if err != nil {
			t.Fatalf("ParseCommand(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "restart", "start now"} {
		if _, err := ParseCommand(bad); !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("ParseCommand(%q) err = %v, want ErrInvalidCommand", bad, err)
		}
	}
}

func TestCommandValid(t *testing.T) {
	for _, c := range []Command{CommandStart, CommandStop, CommandExit} {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	for _, c := range []Command{0, 4, -1} {
		if c.Valid() {
			t.Errorf("Command(%d) should be invalid", int(c))
		}
		if c.String() != "invalid" {
			t.Errorf("Command(%d).String() = %q", int(c), c.String())
		}
	}
}

func TestToggle(t *testing.T) {
	if Toggle(StateInsecure) != CommandStart {
		t.Error("toggle from INSECURE should be START")
	}
	if Toggle(StateSecure) != CommandStop {
		t.Error("toggle from SECURE should be STOP")
	}
}

func TestLifecycleStateString(t *testing.T) {
	if StateInsecure.String() != "INSECURE" || StateSecure.String() != "SECURE" {
		t.Errorf("unexpected names %q %q", StateInsecure, StateSecure)
	}
}
