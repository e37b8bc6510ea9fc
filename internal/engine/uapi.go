// Package engine binds the WireGuard userspace implementation to the
// lifecycle controller's engine contract. Configuration payloads are
// WireGuard UAPI text and are passed through without interpretation, except
// for the few keys reported in the backend info.
package engine

import (
	"bufio"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// Name identifies the engine in backend info.
const Name = "wireguard-go"

// Info describes the engine for the backend-info relay event.
type Info struct {
	Engine     string `json:"engine"`
	PublicKey  string `json:"public_key,omitempty"`
	ListenPort int    `json:"listen_port,omitempty"`
	Running    bool   `json:"running"`
}

// uapiState tracks the values of interest seen across configuration payloads.
type uapiState struct {
	privateKey string // hex, as in UAPI
	listenPort int
}

// observe records private_key and listen_port from a UAPI set payload.
// Only interface-level keys (before the first public_key line) are considered.
func (s *uapiState) observe(payload string) {
	sc := bufio.NewScanner(strings.NewReader(payload))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "public_key":
			return
		case "private_key":
			s.privateKey = value
		case "listen_port":
			if port, err := strconv.Atoi(value); err == nil {
				s.listenPort = port
			}
		}
	}
}

// uapiGet returns the first value of key in a UAPI get response.
func uapiGet(response, key string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(response))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// markPayload returns the UAPI set payload applying fwMark, or "" for 0.
func markPayload(fwMark uint32) string {
	if fwMark == 0 {
		return ""
	}
	return "fwmark=" + strconv.FormatUint(uint64(fwMark), 10) + "\n"
}

// PublicKey derives the base64 public key for a hex-encoded private key.
func PublicKey(privateKeyHex string) (string, error) {
	priv, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	if len(priv) != curve25519.ScalarSize {
		return "", fmt.Errorf("invalid private key length: %d", len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

func (s *uapiState) info(running bool) Info {
	info := Info{Engine: Name, ListenPort: s.listenPort, Running: running}
	if s.privateKey != "" {
		if pub, err := PublicKey(s.privateKey); err == nil {
			info.PublicKey = pub
		}
	}
	return info
}
