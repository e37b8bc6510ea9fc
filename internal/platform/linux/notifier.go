//go:build linux

package linux

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

const (
	notifyDest      = "org.freedesktop.Notifications"
	notifyPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyInterface = "org.freedesktop.Notifications"
)

// Notifier implements platform.ActionNotifier using freedesktop notifications
// over the D-Bus session bus. The bus is connected lazily on first use.
type Notifier struct {
	appName string

	mu      sync.Mutex
	conn    *dbus.Conn
	id      uint32 // current persistent notification, 0 if none
	actions chan string
}

// NewNotifier creates a D-Bus notifier that reports as appName.
func NewNotifier(appName string) *Notifier {
	return &Notifier{appName: appName, actions: make(chan string, 8)}
}

func (n *Notifier) connect() (*dbus.Conn, error) {
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(notifyPath),
		dbus.WithMatchInterface(notifyInterface),
		dbus.WithMatchMember("ActionInvoked"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe ActionInvoked: %w", err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	go n.dispatch(signals)

	n.conn = conn
	return conn, nil
}

// dispatch forwards ActionInvoked signals for our notification to Actions().
func (n *Notifier) dispatch(signals <-chan *dbus.Signal) {
	for sig := range signals {
		if sig.Name != notifyInterface+".ActionInvoked" || len(sig.Body) < 2 {
			continue
		}
		id, ok1 := sig.Body[0].(uint32)
		key, ok2 := sig.Body[1].(string)
		if !ok1 || !ok2 {
			continue
		}
		n.mu.Lock()
		ours := id == n.id
		n.mu.Unlock()
		if !ours {
			continue
		}
		select {
		case n.actions <- key:
		default:
			core.Log.Warnf("Notifier", "Dropping action %q: consumer not keeping up", key)
		}
	}
}

// Show displays a transient notification.
func (n *Notifier) Show(title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	conn, err := n.connect()
	if err != nil {
		return err
	}
	_, err = n.notify(conn, 0, title, message, "", nil, false)
	return err
}

// ShowPersistent shows or replaces the persistent status notification.
func (n *Notifier) ShowPersistent(title, message, icon string, actions []platform.Action) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	conn, err := n.connect()
	if err != nil {
		return err
	}
	id, err := n.notify(conn, n.id, title, message, icon, actions, true)
	if err != nil {
		return err
	}
	n.id = id
	return nil
}

// Dismiss closes the persistent notification.
func (n *Notifier) Dismiss() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil || n.id == 0 {
		return nil
	}
	id := n.id
	n.id = 0
	call := n.conn.Object(notifyDest, notifyPath).Call(notifyInterface+".CloseNotification", 0, id)
	if call.Err != nil {
		return fmt.Errorf("close notification %d: %w", id, call.Err)
	}
	return nil
}

// Actions delivers invoked action keys.
func (n *Notifier) Actions() <-chan string { return n.actions }

// Close disconnects from the session bus.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

func (n *Notifier) notify(conn *dbus.Conn, replaces uint32, title, body, icon string, actions []platform.Action, resident bool) (uint32, error) {
	flat := make([]string, 0, 2*len(actions))
	for _, a := range actions {
		flat = append(flat, a.Key, a.Label)
	}
	hints := map[string]dbus.Variant{}
	expire := int32(-1)
	if resident {
		hints["resident"] = dbus.MakeVariant(true)
		hints["urgency"] = dbus.MakeVariant(byte(1))
		expire = 0
	}

	call := conn.Object(notifyDest, notifyPath).Call(notifyInterface+".Notify", 0,
		n.appName, replaces, icon, title, body, flat, hints, expire)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify reply: %w", err)
	}
	return id, nil
}
