//go:build linux

package linux

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Protector exempts sockets from the tunnel by setting SO_MARK to the mark
// excluded by the provisioner's policy rule.
type Protector struct {
	Mark uint32
}

// Protect marks fd. Requires CAP_NET_ADMIN.
func (p Protector) Protect(fd int) error {
	if fd <= 0 {
		return fmt.Errorf("invalid socket descriptor %d", fd)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, int(p.Mark)); err != nil {
		return fmt.Errorf("setsockopt SO_MARK=%#x on fd %d: %w", p.Mark, fd, err)
	}
	return nil
}
