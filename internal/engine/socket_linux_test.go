//go:build linux

package engine

import (
	"net"
	"strings"
	"testing"
)

const sampleUDPTable = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode ref pointer drops
  226: 00000000:CA6C 00000000:0000 07 00000000:00000000 00:00000000 00000000     0        0 48213 2 0000000000000000 0
  310: 0100007F:0035 00000000:0000 07 00000000:00000000 00:00000000 00000000   101        0 17645 2 0000000000000000 0
`

func TestFindUDPInode(t *testing.T) {
	inode, ok := findUDPInode(strings.NewReader(sampleUDPTable), 0xca6c)
	if !ok || inode != 48213 {
		t.Errorf("findUDPInode(51820) = %d, %v", inode, ok)
	}
	if _, ok := findUDPInode(strings.NewReader(sampleUDPTable), 1234); ok {
		t.Error("unexpected match for port 1234")
	}
}

func TestSocketFdForUDPPortFindsOwnSocket(t *testing.T) {
	pc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	fd, err := socketFdForUDPPort(port)
	if err != nil {
		t.Skipf("procfs lookup unavailable: %v", err)
	}

	raw, err := pc.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var want int
	if err := raw.Control(func(f uintptr) { want = int(f) }); err != nil {
		t.Fatal(err)
	}
	if fd != want {
		t.Errorf("socketFdForUDPPort = %d, want %d", fd, want)
	}
}

func TestStoppedEngineReportsNotReady(t *testing.T) {
	w := New()
	if w.SocketHandle() != 0 {
		t.Error("stopped engine must report 0")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop on stopped engine: %v", err)
	}
	if err := w.Configure("private_key=" + testPrivateKeyHex + "\n"); err != nil {
		t.Fatal(err)
	}
	if len(w.pending) != 1 {
		t.Errorf("payload should be queued until Start, pending=%d", len(w.pending))
	}
	if info := w.Info(); info.PublicKey != testPublicKey || info.Running {
		t.Errorf("unexpected info %+v", info)
	}
}
