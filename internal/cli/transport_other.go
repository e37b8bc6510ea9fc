//go:build !linux && !darwin && !windows

package cli

import (
	"net"
	"time"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/ipc"
)

type unsupportedTransport struct{ addr string }

func (t unsupportedTransport) Dial(time.Duration) (net.Conn, error) { return nil, core.ErrUnsupported }
func (t unsupportedTransport) Address() string                       { return t.addr }

func newTransport(addr string) ipc.Dialer {
	return unsupportedTransport{addr: addr}
}
