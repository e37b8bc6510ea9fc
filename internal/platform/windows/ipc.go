//go:build windows

package windows

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const (
	// DefaultPipeName is the Named Pipe path for the service relay.
	DefaultPipeName = `\\.\pipe\secure-tunnel`
)

// IPCTransport implements platform.IPCTransport using Windows Named Pipes.
type IPCTransport struct {
	pipe string
}

// NewIPCTransport creates a Named Pipe transport (DefaultPipeName if empty).
func NewIPCTransport(pipe string) *IPCTransport {
	if pipe == "" {
		pipe = DefaultPipeName
	}
	return &IPCTransport{pipe: pipe}
}

// Listener creates a Named Pipe listener for the gRPC server.
// The pipe allows any authenticated user to connect (SDDL grant).
func (t *IPCTransport) Listener() (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;AU)",
		MessageMode:        false,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	return winio.ListenPipe(t.pipe, cfg)
}

// Dial connects to the service Named Pipe.
func (t *IPCTransport) Dial(timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(t.pipe, &timeout)
}

// Address returns the pipe path.
func (t *IPCTransport) Address() string { return t.pipe }
