// Package status renders the lifecycle state as a persistent foreground
// indicator and turns indicator actions back into controller commands.
package status

import (
	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

// DefaultTitle is used when Options.Title is empty.
const DefaultTitle = "Secure Tunnel"

// Freedesktop icon names; other renderers treat them as hints.
const (
	IconSecure   = "network-vpn"
	IconInsecure = "network-vpn-disconnected"
)

// Options configures indicator content.
type Options struct {
	Title string
}

// Indicator is the rendered form of a lifecycle state.
type Indicator struct {
	State   core.LifecycleState
	Title   string
	Message string
	Icon    string
	// Actions are [toggle, exit]; each Key is a command name accepted by core.ParseCommand.
	Actions []platform.Action
}

// BuildIndicator returns the indicator for state. It has no side effects.
func BuildIndicator(state core.LifecycleState, opts Options) Indicator {
	title := opts.Title
	if title == "" {
		title = DefaultTitle
	}

	ind := Indicator{State: state, Title: title}
	toggle := platform.Action{Key: core.Toggle(state).String()}
	switch state {
	case core.StateSecure:
		ind.Message = "Secured: traffic is routed through the tunnel"
		ind.Icon = IconSecure
		toggle.Label = "Disconnect"
	default:
		ind.Message = "Unsecured: the tunnel is not active"
		ind.Icon = IconInsecure
		toggle.Label = "Secure my connection"
	}
	ind.Actions = []platform.Action{
		toggle,
		{Key: core.CommandExit.String(), Label: "Quit"},
	}
	return ind
}
