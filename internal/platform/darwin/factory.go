//go:build darwin

// Package darwin provides macOS platform implementations: utun provisioning,
// IP_BOUND_IF socket protection, Unix domain socket IPC and osascript notifications.
package darwin

import (
	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/platform"
)

// NewPlatform creates a Platform configured for macOS.
func NewPlatform(opts platform.Options) *platform.Platform {
	return &platform.Platform{
		Provisioner: NewProvisioner(),
		Protector:   Protector{},
		NewEngine: func() platform.TunnelEngine {
			return engine.New()
		},
		IPC:      NewIPCTransport(opts.IPCAddress),
		Notifier: &Notifier{},
	}
}
