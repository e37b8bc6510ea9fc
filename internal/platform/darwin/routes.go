//go:build darwin

package darwin

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

// defaultSubRanges covers the full IPv4 address space using 8 specific prefixes
// instead of replacing the system default route (0/0), which preserves
// scoped-route semantics used by system apps. Longest-prefix match still
// sends all traffic through utun.
var defaultSubRanges = []string{
	"1.0.0.0/8",
	"2.0.0.0/7",
	"4.0.0.0/6",
	"8.0.0.0/5",
	"16.0.0.0/4",
	"32.0.0.0/3",
	"64.0.0.0/2",
	"128.0.0.0/1",
}

// expandRoutes converts prefixes to route(8) arguments, replacing the IPv4
// catch-all with defaultSubRanges.
func expandRoutes(routes []netip.Prefix) []string {
	var out []string
	for _, p := range routes {
		if p.Addr().Is4() && p.Bits() == 0 {
			out = append(out, defaultSubRanges...)
			continue
		}
		out = append(out, p.Masked().String())
	}
	return out
}

// defaultRoute parses `route -n get default` into the interface name and gateway.
func defaultRoute() (ifName string, gateway netip.Addr, err error) {
	out, err := exec.Command("route", "-n", "get", "default").CombinedOutput()
	if err != nil {
		return "", netip.Addr{}, fmt.Errorf("route get default: %w", err)
	}
	ifName, gw := parseDefaultRoute(string(out))
	if ifName == "" {
		return "", netip.Addr{}, fmt.Errorf("no default interface found")
	}
	gateway, _ = netip.ParseAddr(gw)
	return ifName, gateway, nil
}

func parseDefaultRoute(out string) (ifName, gateway string) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "gateway:") {
			gateway = strings.TrimSpace(line[len("gateway:"):])
		} else if strings.HasPrefix(line, "interface:") {
			ifName = strings.TrimSpace(line[len("interface:"):])
		}
	}
	return ifName, gateway
}

// routeExec runs a `route` command. If tolerateExists is true,
// "File exists" errors are silently ignored (route already present).
// "not in table" errors are always tolerated on delete.
func routeExec(args []string, tolerateExists bool) error {
	out, err := exec.Command("route", args...).CombinedOutput()
	if err != nil {
		outStr := strings.TrimSpace(string(out))
		if tolerateExists && strings.Contains(outStr, "File exists") {
			return nil
		}
		if strings.Contains(outStr, "not in table") {
			return nil
		}
		return fmt.Errorf("route %s: %s", strings.Join(args, " "), outStr)
	}
	return nil
}
