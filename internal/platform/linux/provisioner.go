//go:build linux

package linux

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/tun"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

// Provisioner creates TUN interfaces and installs fwmark policy routing so
// that everything except marked sockets is routed through the tunnel table.
type Provisioner struct {
	fwMark uint32
	table  int
}

// NewProvisioner creates a provisioner using the given mark and routing table.
func NewProvisioner(fwMark uint32, table int) *Provisioner {
	return &Provisioner{fwMark: fwMark, table: table}
}

// Provision creates the TUN device, assigns addresses, brings the link up and
// installs routes plus policy rules. Partial setups are rolled back on failure.
func (p *Provisioner) Provision(ctx context.Context, cfg platform.InterfaceConfig) (platform.TunnelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, err := tun.CreateTUN(cfg.SessionName, cfg.MTU)
	if err != nil {
		return nil, fmt.Errorf("create TUN %q: %w", cfg.SessionName, err)
	}
	name, err := dev.Name()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("TUN name: %w", err)
	}

	h := &handle{dev: dev, name: name}
	if err := p.configure(ctx, h, cfg); err != nil {
		h.Close()
		return nil, err
	}

	fd := int(dev.File().Fd())
	if err := unix.SetNonblock(fd, !cfg.Blocking); err != nil {
		h.Close()
		return nil, fmt.Errorf("set descriptor mode: %w", err)
	}
	h.fd = fd

	core.Log.Infof("Platform", "TUN %s ready (mtu=%d, addrs=%v, routes=%v, table=%d)", name, cfg.MTU, cfg.Addresses, cfg.Routes, p.table)
	return h, nil
}

func (p *Provisioner) configure(ctx context.Context, h *handle, cfg platform.InterfaceConfig) error {
	link, err := netlink.LinkByName(h.name)
	if err != nil {
		return fmt.Errorf("lookup link %s: %w", h.name, err)
	}

	for _, prefix := range cfg.Addresses {
		addr := &netlink.Addr{IPNet: prefixToIPNet(prefix)}
		if err := netlink.AddrAdd(link, addr); err != nil {
			return fmt.Errorf("add address %s: %w", prefix, err)
		}
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("link up %s: %w", h.name, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	families := make(map[int]bool)
	for _, prefix := range cfg.Routes {
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Dst:       prefixToIPNet(prefix),
			Table:     p.table,
		}
		if err := netlink.RouteReplace(route); err != nil {
			return fmt.Errorf("add route %s: %w", prefix, err)
		}
		families[familyOf(prefix.Addr())] = true
	}

	for family := range families {
		// Unmarked traffic looks up the tunnel table.
		tunnelRule := netlink.NewRule()
		tunnelRule.Family = family
		tunnelRule.Invert = true
		tunnelRule.Mark = p.fwMark
		tunnelRule.Table = p.table
		if err := netlink.RuleAdd(tunnelRule); err != nil {
			return fmt.Errorf("add fwmark rule: %w", err)
		}
		h.rules = append(h.rules, tunnelRule)

		// Keep more specific main-table routes (LAN, link-local) reachable.
		suppressRule := netlink.NewRule()
		suppressRule.Family = family
		suppressRule.Table = unix.RT_TABLE_MAIN
		suppressRule.SuppressPrefixlen = 0
		if err := netlink.RuleAdd(suppressRule); err != nil {
			return fmt.Errorf("add suppress rule: %w", err)
		}
		h.rules = append(h.rules, suppressRule)
	}

	if len(cfg.DNS) > 0 {
		h.dnsSet = setLinkDNS(h.name, cfg.DNS)
	}
	return nil
}

// handle owns a provisioned TUN device and the rules installed for it.
type handle struct {
	dev    tun.Device
	name   string
	fd     int
	rules  []*netlink.Rule
	dnsSet bool

	closeOnce sync.Once
	closeErr  error
}

func (h *handle) Fd() int      { return h.fd }
func (h *handle) Name() string { return h.name }

// Close removes the policy rules, reverts DNS and destroys the device.
// Routes in the tunnel table disappear with the link.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		for i := len(h.rules) - 1; i >= 0; i-- {
			if err := netlink.RuleDel(h.rules[i]); err != nil {
				core.Log.Warnf("Platform", "Remove rule on %s: %v", h.name, err)
			}
		}
		if h.dnsSet {
			revertLinkDNS(h.name)
		}
		h.closeErr = h.dev.Close()
		core.Log.Infof("Platform", "TUN %s closed", h.name)
	})
	return h.closeErr
}

// setLinkDNS applies per-link DNS servers through systemd-resolved when present.
func setLinkDNS(link string, servers []netip.Addr) bool {
	path, err := exec.LookPath("resolvectl")
	if err != nil {
		core.Log.Warnf("Platform", "resolvectl not found, DNS servers %v not applied", servers)
		return false
	}
	args := []string{"dns", link}
	for _, s := range servers {
		args = append(args, s.String())
	}
	if out, err := exec.Command(path, args...).CombinedOutput(); err != nil {
		core.Log.Warnf("Platform", "resolvectl dns %s: %v (%s)", link, err, out)
		return false
	}
	if out, err := exec.Command(path, "domain", link, "~.").CombinedOutput(); err != nil {
		core.Log.Warnf("Platform", "resolvectl domain %s: %v (%s)", link, err, out)
	}
	return true
}

func revertLinkDNS(link string) {
	if out, err := exec.Command("resolvectl", "revert", link).CombinedOutput(); err != nil {
		core.Log.Debugf("Platform", "resolvectl revert %s: %v (%s)", link, err, out)
	}
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	bits := 32
	if p.Addr().Is6() {
		bits = 128
	}
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), bits),
	}
}

func familyOf(a netip.Addr) int {
	if a.Is4() {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
