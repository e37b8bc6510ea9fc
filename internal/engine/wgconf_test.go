package engine

import (
	"strings"
	"testing"
)

// Fake WireGuard keys (valid base64-encoded 32-byte values for testing only).
const (
	confPrivateKey   = "YWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWFhYWE=" // 32x 0x61
	confPeerKey    = "YmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmJiYmI=" // 32x 0x62
	confPresharedKey = "Y2NjY2NjY2NjY2NjY2NjY2NjY2NjY2NjY2NjY2NjY2M=" // 32x 0x63
)

var (
	hexA = strings.Repeat("61", 32)
	hexB = strings.Repeat("62", 32)
	hexC = strings.Repeat("63", 32)
)

// TestParseConfEndpointBeforePublicKey verifies that an exported config with
// Endpoint before PublicKey in [Peer] still yields public_key first.
func TestParseConfEndpointBeforePublicKey(t *testing.T) {
	conf := "\xEF\xBB\xBF[Interface]\n" +
		"Address = 10.8.1.4/32, fd00::4\n" +
		"PrivateKey = " + confPrivateKey + "\n" +
		"ListenPort = 51820\n" +
		"DNS = 198.51.100.53, 208.67.222.222, corp.example\n" +
		"MTU = 1380\n" +
		"Jc = 3\n" +
		"\n" +
		"[Peer]\n" +
		"#@ws:AllowedApps = chrome\n" +
		"Endpoint = 198.51.100.1:37298\n" +
		"PublicKey = " + confPeerKey + "\n" +
		"PresharedKey = " + confPresharedKey + "\n" +
		"PersistentKeepalive = 25\n" +
		"AllowedIPs = 0.0.0.0/0,::/0\n"

	parsed, err := ParseConf(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("ParseConf: %v", err)
	}

	want := "private_key=" + hexA + "\n" +
		"listen_port=51820\n" +
		"replace_peers=true\n" +
		"public_key=" + hexB + "\n" +
		"endpoint=198.51.100.1:37298\n" +
		"preshared_key=" + hexC + "\n" +
		"persistent_keepalive_interval=25\n" +
		"allowed_ip=0.0.0.0/0\n" +
		"allowed_ip=::/0\n"
	if parsed.UAPI != want {
		t.Errorf("UAPI:\n%s\nwant:\n%s", parsed.UAPI, want)
	}

	if len(parsed.Addresses) != 2 || parsed.Addresses[0].String() != "10.8.1.4/32" || parsed.Addresses[1].String() != "fd00::4/128" {
		t.Errorf("Addresses = %v", parsed.Addresses)
	}
	if len(parsed.DNS) != 2 || parsed.DNS[0].String() != "198.51.100.53" {
		t.Errorf("DNS = %v", parsed.DNS)
	}
	if parsed.MTU != 1380 {
		t.Errorf("MTU = %d, want 1380", parsed.MTU)
	}
}

func TestParseConfMultiplePeers(t *testing.T) {
	conf := "[Interface]\nPrivateKey = " + confPrivateKey + "\n" +
		"[Peer]\nPublicKey = " + confPeerKey + "\nAllowedIPs = 10.0.0.0/8\n" +
		"[Peer]\nPublicKey = " + confPresharedKey + "\nAllowedIPs = 172.16.0.0/12\n"

	parsed, err := ParseConf(strings.NewReader(conf))
	if err != nil {
		t.Fatalf("ParseConf: %v", err)
	}
	if n := strings.Count(parsed.UAPI, "replace_peers=true"); n != 1 {
		t.Errorf("replace_peers emitted %d times", n)
	}
	if n := strings.Count(parsed.UAPI, "public_key="); n != 2 {
		t.Errorf("public_key emitted %d times", n)
	}
}

func TestParseConfErrors(t *testing.T) {
	tests := map[string]string{
		"peer without key": "[Peer]\nAllowedIPs = 0.0.0.0/0\n",
		"bad private key":  "[Interface]\nPrivateKey = not-base64!\n",
		"short key":        "[Interface]\nPrivateKey = YWJj\n",
		"bad address":      "[Interface]\nAddress = 10.0.0.300/24\n",
		"bad mtu":          "[Interface]\nMTU = large\n",
		"bad port":         "[Interface]\nListenPort = 70000\n",
	}
	for name, conf := range tests {
		if _, err := ParseConf(strings.NewReader(conf)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestIsConf(t *testing.T) {
	if !IsConf("# exported\n\n[Interface]\nPrivateKey = x\n") {
		t.Error("wg-quick text not detected")
	}
	if IsConf("private_key=" + hexA + "\nlisten_port=1\n") {
		t.Error("UAPI text detected as wg-quick")
	}
	if IsConf("") {
		t.Error("empty payload detected as wg-quick")
	}
}
