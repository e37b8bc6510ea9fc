//go:build darwin

package darwin

import (
	"fmt"
	"os/exec"

	"secure-tunnel/internal/platform"
)

// Notifier implements platform.ActionNotifier using macOS osascript.
// osascript notifications carry no buttons, so Actions is always nil.
type Notifier struct{}

// Show displays a macOS system notification using osascript.
func (n *Notifier) Show(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// ShowPersistent shows the status as a regular notification.
func (n *Notifier) ShowPersistent(title, message, _ string, _ []platform.Action) error {
	return n.Show(title, message)
}

// Dismiss is a no-op: Notification Center owns delivered notifications.
func (n *Notifier) Dismiss() error { return nil }

// Actions returns nil.
func (n *Notifier) Actions() <-chan string { return nil }
