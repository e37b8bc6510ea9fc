//go:build linux

// Package linux provides Linux platform implementations: TUN provisioning with
// fwmark policy routing, SO_MARK socket protection, Unix domain socket IPC and
// freedesktop notifications over D-Bus.
package linux

import (
	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/platform"
)

// NewPlatform creates a Platform configured for Linux.
func NewPlatform(opts platform.Options) *platform.Platform {
	return &platform.Platform{
		Provisioner: NewProvisioner(opts.FwMark, opts.RoutingTable),
		Protector:   Protector{Mark: opts.FwMark},
		NewEngine: func() platform.TunnelEngine {
			return engine.NewWithMark(opts.FwMark)
		},
		IPC:      NewIPCTransport(opts.IPCAddress),
		Notifier: NewNotifier(opts.AppName),
	}
}
