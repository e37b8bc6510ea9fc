//go:build windows

package cli

import (
	"secure-tunnel/internal/ipc"
	platformWindows "secure-tunnel/internal/platform/windows"
)

func newTransport(addr string) ipc.Dialer {
	return platformWindows.NewIPCTransport(addr)
}
