//go:build darwin

package darwin

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

const (
	ipBoundIF   = 25  // IP_BOUND_IF (IPPROTO_IP level on macOS)
	ipv6BoundIF = 125 // IPV6_BOUND_IF (IPPROTO_IPV6 level on macOS)
)

// Protector exempts a socket from the tunnel by binding it to the physical
// interface that carries the default route (IP_BOUND_IF).
type Protector struct{}

// Protect binds fd to the current default-route interface.
func (Protector) Protect(fd int) error {
	ifName, _, err := defaultRoute()
	if err != nil {
		return err
	}
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return fmt.Errorf("interface %s: %w", ifName, err)
	}

	v4Err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, ipBoundIF, iface.Index)
	v6Err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, ipv6BoundIF, iface.Index)
	if v4Err != nil && v6Err != nil {
		return fmt.Errorf("IP_BOUND_IF %s: %w", ifName, v4Err)
	}
	return nil
}
