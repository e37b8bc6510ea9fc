package platform

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// InterfaceConfig describes the virtual interface requested from the host.
type InterfaceConfig struct {
	SessionName string
	Addresses   []netip.Prefix
	Routes      []netip.Prefix
	DNS         []netip.Addr
	MTU         int
	Blocking    bool
}

// TunnelHandle is an established virtual interface owned by the caller.
type TunnelHandle interface {
	// Fd returns the raw interface descriptor handed to the engine.
	Fd() int
	// Name returns the OS interface name.
	Name() string
	// Close releases the interface and everything installed for it.
	Close() error
}

// InterfaceProvisioner obtains virtual interfaces from the host OS
// (/dev/net/tun on Linux, utun on macOS, an external VpnService on Android).
type InterfaceProvisioner interface {
	// Provision creates the interface. It may block on the host.
	Provision(ctx context.Context, cfg InterfaceConfig) (TunnelHandle, error)
}

// SocketProtector exempts a socket from the tunnel's own routing.
type SocketProtector interface {
	Protect(fd int) error
}

// ProtectorFunc adapts a plain function (e.g. a host VpnService.protect callback) to SocketProtector.
type ProtectorFunc func(fd int) error

// Protect calls f(fd).
func (f ProtectorFunc) Protect(fd int) error { return f(fd) }

// TunnelEngine is the native engine binding driven by the lifecycle controller.
type TunnelEngine interface {
	// Start runs the engine on the given interface descriptor.
	Start(fd int, sessionName string) error
	// Stop tears the engine down. Safe to call when not running.
	Stop() error
	// SocketHandle returns the engine's transport socket, or 0 while not ready.
	SocketHandle() int
	// Configure passes an opaque configuration payload to the engine.
	Configure(payload string) error
}

// Notifier sends system notifications.
type Notifier interface {
	// Show displays a system notification.
	Show(title, message string) error
}

// ActionScheme is the URI scheme for notification buttons that activate an
// external handler (tunnelctl uri) with "<scheme>:<key>".
const ActionScheme = "secure-tunnel"

// Action is a button on a persistent notification.
type Action struct {
	Key   string // delivered on Actions() when invoked
	Label string
}

// ActionNotifier is a Notifier that can keep a single persistent notification
// with action buttons on screen and report which button was pressed.
type ActionNotifier interface {
	Notifier
	// ShowPersistent shows or replaces the persistent notification.
	ShowPersistent(title, message, icon string, actions []Action) error
	// Dismiss removes the persistent notification, if shown.
	Dismiss() error
	// Actions delivers the keys of invoked actions. Nil when the host
	// cannot report actions back to the service.
	Actions() <-chan string
}

// IPCTransport abstracts the IPC transport layer
// (Named Pipes on Windows, Unix Domain Socket elsewhere).
type IPCTransport interface {
	// Listener creates a server-side listener.
	Listener() (net.Listener, error)
	// Dial connects to the IPC endpoint with the given timeout.
	Dial(timeout time.Duration) (net.Conn, error)
	// Address returns the endpoint path.
	Address() string
}
