//go:build darwin

package cli

import (
	"secure-tunnel/internal/ipc"
	platformDarwin "secure-tunnel/internal/platform/darwin"
)

func newTransport(addr string) ipc.Dialer {
	return platformDarwin.NewIPCTransport(addr)
}
