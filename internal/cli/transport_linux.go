//go:build linux

package cli

import (
	"secure-tunnel/internal/ipc"
	platformLinux "secure-tunnel/internal/platform/linux"
)

func newTransport(addr string) ipc.Dialer {
	return platformLinux.NewIPCTransport(addr)
}
