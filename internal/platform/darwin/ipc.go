//go:build darwin

package darwin

import (
	"net"
	"os"
	"time"
)

// DefaultSocketPath is the Unix domain socket path for the service relay.
const DefaultSocketPath = "/var/run/secure-tunnel.sock"

// IPCTransport implements platform.IPCTransport using Unix domain sockets.
type IPCTransport struct {
	path string
}

// NewIPCTransport creates a Unix domain socket IPC transport (DefaultSocketPath if empty).
func NewIPCTransport(path string) *IPCTransport {
	if path == "" {
		path = DefaultSocketPath
	}
	return &IPCTransport{path: path}
}

// Listener creates a Unix domain socket listener for the gRPC server.
func (t *IPCTransport) Listener() (net.Listener, error) {
	// Remove stale socket file from previous run.
	os.Remove(t.path)
	ln, err := net.Listen("unix", t.path)
	if err != nil {
		return nil, err
	}
	// Allow any authenticated user to connect.
	if err := os.Chmod(t.path, 0666); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

// Dial connects to the service's Unix domain socket.
func (t *IPCTransport) Dial(timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", t.path, timeout)
}

// Address returns the socket path.
func (t *IPCTransport) Address() string { return t.path }
