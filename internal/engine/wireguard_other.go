//go:build !linux

package engine

import (
	"fmt"
	"sync"

	"secure-tunnel/internal/core"
)

// WireGuard is unavailable on this platform: the descriptor-based TUN
// handoff is Linux-only. Configuration is still accepted and reported.
type WireGuard struct {
	mu   sync.Mutex
	uapi uapiState
}

// New creates a stopped engine.
func New() *WireGuard {
	return &WireGuard{}
}

// Start always fails with core.ErrUnsupported.
func (w *WireGuard) Start(fd int, sessionName string) error {
	return fmt.Errorf("wireguard engine on fd %d: %w", fd, core.ErrUnsupported)
}

// Stop is a no-op.
func (w *WireGuard) Stop() error { return nil }

// SocketHandle always reports not ready.
func (w *WireGuard) SocketHandle() int { return 0 }

// Configure records the payload for backend info.
func (w *WireGuard) Configure(payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.uapi.observe(payload)
	return nil
}

// Info reports the engine identity for backend info.
func (w *WireGuard) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uapi.info(false)
}
