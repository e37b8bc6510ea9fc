//go:build windows

package windows

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	ipUnicastIF = 31 // IP_UNICAST_IF (IPPROTO_IP level)
)

// Protector exempts a socket from the tunnel by pinning it to the interface
// Windows currently prefers for public destinations (IP_UNICAST_IF).
type Protector struct{}

// Protect pins the socket handle fd to the best outbound interface.
func (Protector) Protect(fd int) error {
	var ifIndex uint32
	probe := &windows.SockaddrInet4{Addr: [4]byte{1, 1, 1, 1}}
	if err := windows.GetBestInterfaceEx(probe, &ifIndex); err != nil {
		return fmt.Errorf("GetBestInterfaceEx: %w", err)
	}

	// IP_UNICAST_IF needs interface index in network byte order for IPv4.
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], ifIndex)
	idx := *(*int32)(unsafe.Pointer(&buf[0]))
	if err := syscall.SetsockoptInt(syscall.Handle(fd), syscall.IPPROTO_IP, ipUnicastIF, int(idx)); err != nil {
		return fmt.Errorf("IP_UNICAST_IF: %w", err)
	}
	return nil
}
