package platform

import (
	"context"
	"fmt"
	"net/netip"

	"secure-tunnel/internal/core"
)

// Options carries the per-host settings needed to build platform components.
type Options struct {
	AppName      string
	FwMark       uint32
	RoutingTable int
	IPCAddress   string
}

// Platform aggregates all platform-specific implementations.
// Populated by platform-specific factory (NewPlatform) in platform/linux/, platform/darwin/
// or platform/windows/.
type Platform struct {
	Provisioner InterfaceProvisioner
	Protector   SocketProtector
	NewEngine   func() TunnelEngine
	IPC         IPCTransport
	Notifier    Notifier
}

// BuildInterfaceConfig converts the YAML tunnel section into an InterfaceConfig.
func BuildInterfaceConfig(session string, t core.TunnelConfig) (InterfaceConfig, error) {
	cfg := InterfaceConfig{
		SessionName: session,
		MTU:         t.MTUOrDefault(),
		Blocking:    t.BlockingOrDefault(),
	}
	for _, s := range t.Addresses {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return InterfaceConfig{}, fmt.Errorf("invalid tunnel address %q: %w", s, err)
		}
		cfg.Addresses = append(cfg.Addresses, p)
	}
	for _, s := range t.RoutesOrDefault() {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return InterfaceConfig{}, fmt.Errorf("invalid tunnel route %q: %w", s, err)
		}
		cfg.Routes = append(cfg.Routes, p.Masked())
	}
	for _, s := range t.DNS {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return InterfaceConfig{}, fmt.Errorf("invalid DNS server %q: %w", s, err)
		}
		cfg.DNS = append(cfg.DNS, a)
	}
	return cfg, nil
}

// unsupportedProvisioner is used on hosts without a provisioning backend.
type unsupportedProvisioner struct{}

func (unsupportedProvisioner) Provision(context.Context, InterfaceConfig) (TunnelHandle, error) {
	return nil, core.ErrUnsupported
}

// UnsupportedProvisioner returns a provisioner that always fails with core.ErrUnsupported.
func UnsupportedProvisioner() InterfaceProvisioner { return unsupportedProvisioner{} }
