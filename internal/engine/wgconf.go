package engine

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
)

// Conf is a wg-quick style configuration translated for the engine.
type Conf struct {
	// Addresses from [Interface] Address, as prefixes.
	Addresses []netip.Prefix
	// DNS from [Interface] DNS.
	DNS []netip.Addr
	// MTU from [Interface] MTU, 0 when absent.
	MTU int
	// UAPI is the payload for Configure.
	UAPI string
}

// IsConf reports whether payload is wg-quick INI text rather than UAPI.
func IsConf(payload string) bool {
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\xEF\xBB\xBF"))
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		return strings.HasPrefix(line, "[")
	}
	return false
}

// peerLines buffers one [Peer] section so public_key is emitted first,
// as UAPI requires.
type peerLines struct {
	publicKey string
	lines     []string
}

func (p *peerLines) writeTo(uapi *strings.Builder) error {
	if p.publicKey == "" {
		if len(p.lines) > 0 {
			return fmt.Errorf("peer section has no PublicKey but contains %d keys", len(p.lines))
		}
		return nil
	}
	fmt.Fprintf(uapi, "public_key=%s\n", p.publicKey)
	for _, line := range p.lines {
		uapi.WriteString(line)
	}
	return nil
}

// ParseConf translates a wg-quick configuration into a UAPI payload plus the
// interface settings the engine does not consume. AmneziaWG obfuscation
// keys and wg-quick hooks (PostUp, Table, ...) are ignored.
func ParseConf(r io.Reader) (*Conf, error) {
	conf := &Conf{}
	var uapi strings.Builder
	var peer *peerLines
	section := ""
	peerSeen := false

	flushPeer := func() error {
		if peer == nil {
			return nil
		}
		err := peer.writeTo(&uapi)
		peer = nil
		return err
	}

	sc := bufio.NewScanner(r)
	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			// Windows-exported configs often carry a BOM.
			line = strings.TrimPrefix(line, "\xEF\xBB\xBF")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "@") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if err := flushPeer(); err != nil {
				return nil, err
			}
			section = strings.ToLower(strings.Trim(line, "[] "))
			if section == "peer" {
				if !peerSeen {
					peerSeen = true
					uapi.WriteString("replace_peers=true\n")
				}
				peer = &peerLines{}
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch section {
		case "interface":
			err = conf.interfaceKey(key, value, &uapi)
		case "peer":
			err = peer.key(key, value)
		}
		if err != nil {
			return nil, fmt.Errorf("[%s] %s: %w", section, key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := flushPeer(); err != nil {
		return nil, err
	}

	conf.UAPI = uapi.String()
	return conf, nil
}

func (c *Conf) interfaceKey(key, value string, uapi *strings.Builder) error {
	switch key {
	case "privatekey":
		h, err := base64ToHex(value)
		if err != nil {
			return err
		}
		fmt.Fprintf(uapi, "private_key=%s\n", h)
	case "listenport":
		if _, err := strconv.ParseUint(value, 10, 16); err != nil {
			return fmt.Errorf("invalid port %q", value)
		}
		fmt.Fprintf(uapi, "listen_port=%s\n", value)
	case "fwmark":
		fmt.Fprintf(uapi, "fwmark=%s\n", value)
	case "address":
		for _, s := range splitList(value) {
			prefix, err := parsePrefixOrAddr(s)
			if err != nil {
				return fmt.Errorf("invalid address %q", s)
			}
			c.Addresses = append(c.Addresses, prefix)
		}
	case "dns":
		for _, s := range splitList(value) {
			ip, err := netip.ParseAddr(s)
			if err != nil {
				// Search domains share the DNS key in wg-quick.
				continue
			}
			c.DNS = append(c.DNS, ip)
		}
	case "mtu":
		mtu, err := strconv.Atoi(value)
		if err != nil || mtu <= 0 {
			return fmt.Errorf("invalid MTU %q", value)
		}
		c.MTU = mtu
	}
	return nil
}

func (p *peerLines) key(key, value string) error {
	switch key {
	case "publickey":
		h, err := base64ToHex(value)
		if err != nil {
			return err
		}
		p.publicKey = h
	case "presharedkey":
		h, err := base64ToHex(value)
		if err != nil {
			return err
		}
		p.lines = append(p.lines, "preshared_key="+h+"\n")
	case "endpoint":
		p.lines = append(p.lines, "endpoint="+value+"\n")
	case "allowedips":
		for _, cidr := range splitList(value) {
			p.lines = append(p.lines, "allowed_ip="+cidr+"\n")
		}
	case "persistentkeepalive":
		p.lines = append(p.lines, "persistent_keepalive_interval="+value+"\n")
	}
	return nil
}

func parsePrefixOrAddr(s string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return prefix, nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(ip, ip.BitLen()), nil
}

func base64ToHex(b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	return hex.EncodeToString(raw), nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
