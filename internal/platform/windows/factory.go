//go:build windows

// Package windows provides Windows platform implementations: IP_UNICAST_IF
// socket protection, Named Pipes IPC and toast notifications.
package windows

import (
	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/platform"
)

// NewPlatform creates a Platform configured for Windows.
// Interface provisioning needs a descriptor-based TUN, which Windows lacks, so
// START fails with an InterfaceUnavailable status on this platform.
func NewPlatform(opts platform.Options) *platform.Platform {
	return &platform.Platform{
		Provisioner: platform.UnsupportedProvisioner(),
		Protector:   Protector{},
		NewEngine: func() platform.TunnelEngine {
			return engine.New()
		},
		IPC:      NewIPCTransport(opts.IPCAddress),
		Notifier: NewNotifier(opts.AppName),
	}
}
