//go:build linux

package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var errSocketNotFound = errors.New("socket not found")

// socketFdForUDPPort finds this process's descriptor for the UDP socket bound
// to port, preferring IPv4.
func socketFdForUDPPort(port int) (int, error) {
	for _, table := range []string{"/proc/net/udp", "/proc/net/udp6"} {
		f, err := os.Open(table)
		if err != nil {
			continue
		}
		inode, found := findUDPInode(f, port)
		f.Close()
		if !found {
			continue
		}
		fd, err := fdForInode("/proc/self/fd", inode)
		if err == nil {
			return fd, nil
		}
	}
	return 0, fmt.Errorf("udp port %d: %w", port, errSocketNotFound)
}

// findUDPInode scans a /proc/net/udp table for a socket bound to port.
func findUDPInode(r io.Reader, port int) (uint64, bool) {
	sc := bufio.NewScanner(r)
	sc.Scan() // header
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 10 {
			continue
		}
		_, portHex, ok := strings.Cut(fields[1], ":")
		if !ok {
			continue
		}
		p, err := strconv.ParseUint(portHex, 16, 16)
		if err != nil || int(p) != port {
			continue
		}
		inode, err := strconv.ParseUint(fields[9], 10, 64)
		if err != nil || inode == 0 {
			continue
		}
		return inode, true
	}
	return 0, false
}

// fdForInode returns the descriptor in dir whose link target is socket:[inode].
func fdForInode(dir string, inode uint64) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	want := "socket:[" + strconv.FormatUint(inode, 10) + "]"
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join(dir, e.Name()))
		if err != nil || target != want {
			continue
		}
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		return fd, nil
	}
	return 0, fmt.Errorf("inode %d: %w", inode, errSocketNotFound)
}
