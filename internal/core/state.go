package core

import (
	"fmt"
	"strings"
)

// LifecycleState is the tunnel lifecycle state owned by the controller.
type LifecycleState int

const (
	StateInsecure LifecycleState = iota // no active tunnel
	StateSecure                         // tunnel established and socket protected
)

func (s LifecycleState) String() string {
	switch s {
	case StateInsecure:
		return "INSECURE"
	case StateSecure:
		return "SECURE"
	default:
		return "unknown"
	}
}

// Command is an external request consumed once by the controller.
type Command int

const (
	CommandStart Command = iota + 1
	CommandStop
	CommandExit
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandExit:
		return "exit"
	default:
		return "invalid"
	}
}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	return c >= CommandStart && c <= CommandExit
}

// ParseCommand converts a command name ("start", "stop", "exit") to a Command.
// Unknown names yield ErrInvalidCommand.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return CommandStart, nil
	case "stop":
		return CommandStop, nil
	case "exit":
		return CommandExit, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCommand, s)
	}
}

// Toggle returns the command that flips the given state: STOP while secure, START otherwise.
func Toggle(s LifecycleState) Command {
	if s == StateSecure {
		return CommandStop
	}
	return CommandStart
}
