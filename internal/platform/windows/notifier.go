//go:build windows

package windows

import (
	"sync"

	"github.com/go-toast/toast"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

// Notifier implements platform.ActionNotifier using Windows toast notifications.
// Button presses are delivered through protocol activation, not back to this
// process, so Actions returns nil.
type Notifier struct {
	appName string

	mu   sync.Mutex
	last string // dedupes repeated status toasts
}

// NewNotifier creates a toast notifier that reports as appName.
func NewNotifier(appName string) *Notifier {
	return &Notifier{appName: appName}
}

// Show displays a toast notification.
func (n *Notifier) Show(title, message string) error {
	return n.push(toast.Notification{
		AppID:   n.appName,
		Title:   title,
		Message: message,
	})
}

// ShowPersistent shows a long-duration toast with protocol action buttons.
func (n *Notifier) ShowPersistent(title, message, icon string, actions []platform.Action) error {
	n.mu.Lock()
	key := title + "\x00" + message
	if key == n.last {
		n.mu.Unlock()
		return nil
	}
	n.last = key
	n.mu.Unlock()

	notification := toast.Notification{
		AppID:    n.appName,
		Title:    title,
		Message:  message,
		Icon:     icon,
		Duration: toast.Long,
	}
	for _, a := range actions {
		notification.Actions = append(notification.Actions, toast.Action{
			Type:      "protocol",
			Label:     a.Label,
			Arguments: platform.ActionScheme + ":" + a.Key,
		})
	}
	return n.push(notification)
}

// Dismiss forgets the last status so the next ShowPersistent is always shown.
func (n *Notifier) Dismiss() error {
	n.mu.Lock()
	n.last = ""
	n.mu.Unlock()
	return nil
}

// Actions returns nil.
func (n *Notifier) Actions() <-chan string { return nil }

func (n *Notifier) push(notification toast.Notification) error {
	if err := notification.Push(); err != nil {
		core.Log.Warnf("Notifier", "Toast notification failed: %v", err)
		return err
	}
	return nil
}
