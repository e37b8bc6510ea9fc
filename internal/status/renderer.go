package status

import (
	"strings"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

// Renderer displays an indicator.
type Renderer interface {
	Render(Indicator) error
	Clear() error
}

// ActionSource is implemented by renderers whose indicators have working buttons.
type ActionSource interface {
	// Actions delivers the Key of each invoked action.
	Actions() <-chan string
}

// NotifierRenderer renders through a platform notifier, using the persistent
// notification with buttons when the notifier supports it.
type NotifierRenderer struct {
	notifier platform.Notifier
}

// NewNotifierRenderer wraps n.
func NewNotifierRenderer(n platform.Notifier) *NotifierRenderer {
	return &NotifierRenderer{notifier: n}
}

func (r *NotifierRenderer) Render(ind Indicator) error {
	if an, ok := r.notifier.(platform.ActionNotifier); ok {
		return an.ShowPersistent(ind.Title, ind.Message, ind.Icon, ind.Actions)
	}
	return r.notifier.Show(ind.Title, ind.Message)
}

func (r *NotifierRenderer) Clear() error {
	if an, ok := r.notifier.(platform.ActionNotifier); ok {
		return an.Dismiss()
	}
	return nil
}

// Actions forwards the notifier's action channel, or nil.
func (r *NotifierRenderer) Actions() <-chan string {
	if an, ok := r.notifier.(platform.ActionNotifier); ok {
		return an.Actions()
	}
	return nil
}

// LogRenderer writes indicator changes to the service log. Used headless.
type LogRenderer struct{}

func (LogRenderer) Render(ind Indicator) error {
	labels := make([]string, len(ind.Actions))
	for i, a := range ind.Actions {
		labels[i] = a.Label
	}
	core.Log.Infof("Status", "%s: %s [%s]", ind.Title, ind.Message, strings.Join(labels, " | "))
	return nil
}

func (LogRenderer) Clear() error {
	core.Log.Debugf("Status", "Indicator cleared")
	return nil
}
