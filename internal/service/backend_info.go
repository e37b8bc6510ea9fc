package service

import (
	"encoding/json"

	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/platform"
)

// BackendInfo is the JSON payload of the backend-info relay event.
type BackendInfo struct {
	Version   string `json:"version"`
	Engine    string `json:"engine"`
	PublicKey string `json:"public_key,omitempty"`
}

// engineInfo is implemented by engines that can describe themselves.
type engineInfo interface {
	Info() engine.Info
}

func backendInfo(version string, eng platform.TunnelEngine) string {
	info := BackendInfo{Version: version, Engine: "unknown"}
	if e, ok := eng.(engineInfo); ok {
		ei := e.Info()
		info.Engine = ei.Engine
		info.PublicKey = ei.PublicKey
	}
	data, _ := json.Marshal(info)
	return string(data)
}
