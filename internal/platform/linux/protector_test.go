//go:build linux

package linux

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func TestProtectSetsMark(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	defer unix.Close(fd)

	p := Protector{Mark: 0xca6c}
	if err := p.Protect(fd); err != nil {
		if errors.Is(err, unix.EPERM) {
			t.Skip("SO_MARK requires CAP_NET_ADMIN")
		}
		t.Fatalf("Protect: %v", err)
	}

	mark, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK)
	if err != nil {
		t.Fatalf("getsockopt: %v", err)
	}
	if mark != 0xca6c {
		t.Errorf("mark = %#x, want 0xca6c", mark)
	}
}

func TestProtectRejectsInvalidDescriptor(t *testing.T) {
	if err := (Protector{Mark: 1}).Protect(0); err == nil {
		t.Fatal("expected error for fd 0")
	}
}
