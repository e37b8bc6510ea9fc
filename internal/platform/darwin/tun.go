//go:build darwin

package darwin

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

const (
	// utun kernel control name.
	utunControlName = "com.apple.net.utun_control"

	// SYSPROTO_CONTROL for AF_SYSTEM sockets.
	sysProtoControl = 2
	// UTUN_OPT_IFNAME getsockopt option.
	utunOptIfname = 2
)

// Provisioner implements platform.InterfaceProvisioner using macOS utun interfaces.
// Created via kernel control socket (AF_SYSTEM, SYSPROTO_CONTROL).
type Provisioner struct{}

// NewProvisioner creates a utun provisioner.
func NewProvisioner() *Provisioner { return &Provisioner{} }

// Provision opens a utun device, assigns addresses and MTU, installs routes
// and DNS. The kernel removes the interface when the descriptor is closed.
func (p *Provisioner) Provision(ctx context.Context, cfg platform.InterfaceConfig) (platform.TunnelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fd, ifName, err := openUtun()
	if err != nil {
		return nil, fmt.Errorf("create utun: %w", err)
	}
	h := &utunHandle{
		name: ifName,
		file: os.NewFile(uintptr(fd), ifName),
		fd:   fd,
	}
	if h.file == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("invalid utun fd")
	}

	if err := configureInterface(ifName, cfg); err != nil {
		h.Close()
		return nil, fmt.Errorf("configure %s: %w", ifName, err)
	}
	if err := ctx.Err(); err != nil {
		h.Close()
		return nil, err
	}
	if err := h.addRoutes(cfg.Routes); err != nil {
		h.Close()
		return nil, err
	}
	if len(cfg.DNS) > 0 {
		if err := h.setDNS(cfg.DNS); err != nil {
			core.Log.Warnf("DNS", "DNS not applied: %v", err)
		}
	}
	if err := unix.SetNonblock(fd, !cfg.Blocking); err != nil {
		h.Close()
		return nil, fmt.Errorf("set descriptor mode: %w", err)
	}

	core.Log.Infof("Platform", "utun %s ready (mtu=%d, addrs=%v, routes=%v)", ifName, cfg.MTU, cfg.Addresses, cfg.Routes)
	return h, nil
}

// openUtun opens a new utun device via kernel control socket.
// Returns (fd, interface_name, error).
func openUtun() (int, string, error) {
	fd, err := unix.Socket(unix.AF_SYSTEM, unix.SOCK_DGRAM, sysProtoControl)
	if err != nil {
		return -1, "", fmt.Errorf("socket(AF_SYSTEM): %w", err)
	}

	ctlInfo := &unix.CtlInfo{}
	copy(ctlInfo.Name[:], utunControlName)
	if err := unix.IoctlCtlInfo(fd, ctlInfo); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("CTLIOCGINFO: %w", err)
	}

	// Unit 0 lets the kernel assign the next available utun number.
	sa := unix.SockaddrCtl{ID: ctlInfo.Id, Unit: 0}
	if err := unix.Connect(fd, &sa); err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("connect utun: %w", err)
	}

	ifName, err := unix.GetsockoptString(fd, sysProtoControl, utunOptIfname)
	if err != nil {
		unix.Close(fd)
		return -1, "", fmt.Errorf("get utun name: %w", err)
	}
	return fd, ifName, nil
}

// configureInterface assigns addresses, sets MTU and brings the interface up.
func configureInterface(name string, cfg platform.InterfaceConfig) error {
	for _, prefix := range cfg.Addresses {
		var args []string
		if prefix.Addr().Is4() {
			// Point-to-point: the local address doubles as the peer address.
			args = []string{name, "inet", prefix.String(), prefix.Addr().String(), "up"}
		} else {
			args = []string{name, "inet6", prefix.String(), "up"}
		}
		if out, err := exec.Command("ifconfig", args...).CombinedOutput(); err != nil {
			return fmt.Errorf("ifconfig %s: %s: %w", prefix, strings.TrimSpace(string(out)), err)
		}
	}
	if cfg.MTU > 0 {
		out, err := exec.Command("ifconfig", name, "mtu", fmt.Sprintf("%d", cfg.MTU)).CombinedOutput()
		if err != nil {
			return fmt.Errorf("ifconfig mtu: %s: %w", strings.TrimSpace(string(out)), err)
		}
	}
	return nil
}

// utunHandle owns a utun descriptor plus the routes and DNS installed for it.
type utunHandle struct {
	name string
	file *os.File
	fd   int

	routes         [][]string // delete args for each installed route
	primaryService string
	savedDNS       []string
	dnsSet         bool

	closeOnce sync.Once
	closeErr  error
}

func (h *utunHandle) Fd() int      { return h.fd }
func (h *utunHandle) Name() string { return h.name }

func (h *utunHandle) addRoutes(routes []netip.Prefix) error {
	for _, prefix := range expandRoutes(routes) {
		addArgs := []string{"-n", "add", "-net", prefix, "-interface", h.name}
		delArgs := []string{"-n", "delete", "-net", prefix, "-interface", h.name}
		if err := routeExec(addArgs, true); err != nil {
			return fmt.Errorf("add route %s: %w", prefix, err)
		}
		h.routes = append(h.routes, delArgs)
	}
	return nil
}

// setDNS points the primary network service at the tunnel DNS servers,
// saving the current configuration for restore on Close.
func (h *utunHandle) setDNS(servers []netip.Addr) error {
	svc, err := primaryNetworkService()
	if err != nil {
		return err
	}
	h.primaryService = svc
	h.savedDNS = currentDNSServers(svc)

	args := []string{"-setdnsservers", svc}
	for _, s := range servers {
		args = append(args, s.String())
	}
	if out, err := exec.Command("networksetup", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("networksetup set DNS: %s: %w", strings.TrimSpace(string(out)), err)
	}
	h.dnsSet = true
	flushResolverCache()
	core.Log.Infof("DNS", "System DNS set to %v on service %q", servers, svc)
	return nil
}

func (h *utunHandle) clearDNS() {
	args := []string{"-setdnsservers", h.primaryService}
	if len(h.savedDNS) > 0 {
		args = append(args, h.savedDNS...)
	} else {
		args = append(args, "empty") // restore DHCP/automatic
	}
	if out, err := exec.Command("networksetup", args...).CombinedOutput(); err != nil {
		core.Log.Warnf("DNS", "networksetup clear DNS: %s: %v", strings.TrimSpace(string(out)), err)
		return
	}
	flushResolverCache()
	core.Log.Infof("DNS", "System DNS restored on service %q", h.primaryService)
}

// flushResolverCache drops cached answers so lookups follow the new servers.
func flushResolverCache() {
	for _, argv := range [][]string{{"dscacheutil", "-flushcache"}, {"killall", "-HUP", "mDNSResponder"}} {
		if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
			core.Log.Debugf("DNS", "%s: %v (%s)", strings.Join(argv, " "), err, strings.TrimSpace(string(out)))
		}
	}
}

// Close removes routes, restores DNS and closes the utun descriptor.
func (h *utunHandle) Close() error {
	h.closeOnce.Do(func() {
		for _, delArgs := range h.routes {
			routeExec(delArgs, false)
		}
		h.routes = nil
		if h.dnsSet {
			h.clearDNS()
		}
		h.closeErr = h.file.Close()
		core.Log.Infof("Platform", "utun %s closed", h.name)
	})
	return h.closeErr
}

// primaryNetworkService finds the active network service name (e.g. "Wi-Fi")
// by resolving the default route interface and mapping it via networksetup.
func primaryNetworkService() (string, error) {
	ifName, _, err := defaultRoute()
	if err != nil {
		return "", err
	}

	out, err := exec.Command("networksetup", "-listallhardwareports").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("list hardware ports: %w", err)
	}

	var svc string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Hardware Port:") {
			svc = strings.TrimPrefix(line, "Hardware Port: ")
		} else if strings.HasPrefix(line, "Device:") {
			dev := strings.TrimSpace(strings.TrimPrefix(line, "Device:"))
			if dev == ifName {
				return svc, nil
			}
		}
	}
	return "", fmt.Errorf("no network service for interface %s", ifName)
}

// currentDNSServers returns the current DNS servers for the given network service.
// Returns nil if DNS is set to automatic/DHCP.
func currentDNSServers(service string) []string {
	out, err := exec.Command("networksetup", "-getdnsservers", service).CombinedOutput()
	if err != nil {
		return nil
	}
	text := strings.TrimSpace(string(out))
	if text == "" || strings.Contains(text, "any DNS Servers") {
		return nil
	}
	var servers []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}
