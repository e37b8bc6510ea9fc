//go:build linux

package engine

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"

	"secure-tunnel/internal/core"
)

// WireGuard runs a wireguard-go device on a descriptor handed over by the
// interface provisioner.
type WireGuard struct {
	mu      sync.Mutex
	dev     *device.Device
	bind    conn.Bind
	pending []string // payloads received while stopped, applied on Start
	uapi    uapiState
	fwMark  uint32 // reasserted after every configuration, 0 leaves the device mark alone
}

// New creates a stopped WireGuard engine.
func New() *WireGuard {
	return &WireGuard{}
}

// NewWithMark creates a stopped engine whose device always carries fwMark, so
// every socket the device binds is exempt from the tunnel routing table.
func NewWithMark(fwMark uint32) *WireGuard {
	return &WireGuard{fwMark: fwMark}
}

// Start wraps a duplicate of fd in a TUN device, applies queued configuration
// and brings the device up. The caller keeps ownership of fd.
func (w *WireGuard) Start(fd int, sessionName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev != nil {
		return errors.New("engine already running")
	}

	dupFd, err := unix.Dup(fd)
	if err != nil {
		return fmt.Errorf("dup tun fd %d: %w", fd, err)
	}
	tunDev, name, err := tun.CreateUnmonitoredTUNFromFD(dupFd)
	if err != nil {
		unix.Close(dupFd)
		return fmt.Errorf("wrap tun fd: %w", err)
	}

	logger := &device.Logger{
		Verbosef: func(format string, args ...any) {
			core.Log.Debugf("Engine", "["+sessionName+"] "+format, args...)
		},
		Errorf: func(format string, args ...any) {
			core.Log.Errorf("Engine", "["+sessionName+"] "+format, args...)
		},
	}
	bind := conn.NewDefaultBind()
	dev := device.NewDevice(tunDev, bind, logger)

	for i, payload := range w.pending {
		if err := dev.IpcSet(payload); err != nil {
			dev.Close()
			return fmt.Errorf("apply configuration %d: %w", i+1, err)
		}
	}
	if err := w.pinMark(dev); err != nil {
		dev.Close()
		return err
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return fmt.Errorf("device up: %w", err)
	}

	w.dev = dev
	w.bind = bind
	w.pending = nil
	core.Log.Infof("Engine", "WireGuard device up on %s (fd=%d)", name, dupFd)
	return nil
}

// Stop closes the device. Safe to call when not running.
func (w *WireGuard) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev == nil {
		return nil
	}
	w.dev.Close()
	w.dev = nil
	w.bind = nil
	core.Log.Infof("Engine", "WireGuard device closed")
	return nil
}

// SocketHandle returns the IPv4 transport socket descriptor, or 0 while the
// bind is not open yet.
func (w *WireGuard) SocketHandle() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev == nil {
		return 0
	}
	if peeker, ok := w.bind.(conn.PeekLookAtSocketFd); ok {
		if fd, err := peeker.PeekLookAtSocketFd4(); err == nil && fd > 0 {
			return fd
		}
	}

	resp, err := w.dev.IpcGet()
	if err != nil {
		return 0
	}
	value, ok := uapiGet(resp, "listen_port")
	if !ok {
		return 0
	}
	port, err := strconv.Atoi(value)
	if err != nil || port == 0 {
		return 0
	}
	fd, err := socketFdForUDPPort(port)
	if err != nil {
		core.Log.Debugf("Engine", "Transport socket for port %d: %v", port, err)
		return 0
	}
	return fd
}

// Configure applies a UAPI payload to the running device, or queues it
// until the next Start.
func (w *WireGuard) Configure(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dev != nil {
		if err := w.dev.IpcSet(payload); err != nil {
			return fmt.Errorf("ipc set: %w", err)
		}
		if err := w.pinMark(w.dev); err != nil {
			return err
		}
	} else {
		w.pending = append(w.pending, payload)
	}
	w.uapi.observe(payload)
	return nil
}

// pinMark restores the device fwmark a payload may have changed. A rebind
// triggered by listen_port picks the mark up as well.
func (w *WireGuard) pinMark(dev *device.Device) error {
	payload := markPayload(w.fwMark)
	if payload == "" {
		return nil
	}
	if err := dev.IpcSet(payload); err != nil {
		return fmt.Errorf("set fwmark %#x: %w", w.fwMark, err)
	}
	return nil
}

// Info reports the engine identity for backend info.
func (w *WireGuard) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uapi.info(w.dev != nil)
}
