package engine

import "testing"

// RFC 7748 section 6.1 test vector (Alice).
const (
	testPrivateKeyHex = "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a"
	testPublicKey     = "hSDwCYkwp1R0i33ctD73Wg2/Og0mOBr066SpjqqbTmo="
)

func TestPublicKey(t *testing.T) {
	got, err := PublicKey(testPrivateKeyHex)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if got != testPublicKey {
		t.Errorf("PublicKey = %s, want %s", got, testPublicKey)
	}

	if _, err := PublicKey("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := PublicKey("0102"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestObserveInterfaceKeysOnly(t *testing.T) {
	var s uapiState
	s.observe("private_key=" + testPrivateKeyHex + "\nlisten_port=51820\n" +
		"public_key=" + testPrivateKeyHex + "\nendpoint=192.0.2.1:51820\nlisten_port=1\n")

	if s.privateKey != testPrivateKeyHex {
		t.Errorf("private key = %q", s.privateKey)
	}
	if s.listenPort != 51820 {
		t.Errorf("listen port = %d, peer section must not override it", s.listenPort)
	}

	info := s.info(true)
	if info.Engine != Name || info.PublicKey != testPublicKey || info.ListenPort != 51820 || !info.Running {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestUAPIGet(t *testing.T) {
	resp := "private_key=00\nlisten_port=40000\nfwmark=0\n"
	if v, ok := uapiGet(resp, "listen_port"); !ok || v != "40000" {
		t.Errorf("uapiGet listen_port = %q, %v", v, ok)
	}
	if _, ok := uapiGet(resp, "endpoint"); ok {
		t.Error("unexpected endpoint")
	}
}

func TestMarkPayload(t *testing.T) {
	if got := markPayload(0); got != "" {
		t.Errorf("markPayload(0) = %q, want empty", got)
	}
	if got, want := markPayload(0x51820), "fwmark=333856\n"; got != want {
		t.Errorf("markPayload = %q, want %q", got, want)
	}
}
