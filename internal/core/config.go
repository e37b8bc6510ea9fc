package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultSessionName is the interface/session identifier used when none is configured.
const DefaultSessionName = "secure-tunnel"

// TunnelConfig describes the virtual interface requested from the host.
type TunnelConfig struct {
	Addresses []string `yaml:"addresses,omitempty"`
	// Routes captured by the tunnel. Defaults to the IPv4 catch-all route.
	Routes []string `yaml:"routes,omitempty"`
	DNS    []string `yaml:"dns,omitempty"`
	MTU    int      `yaml:"mtu,omitempty"`
	// Blocking requests a blocking-mode descriptor. Defaults to true.
	Blocking *bool `yaml:"blocking,omitempty"`
}

// ReadinessConfig bounds the engine socket-readiness poll and the exit wait.
type ReadinessConfig struct {
	Interval    string `yaml:"interval,omitempty"`     // default "1s"
	MaxAttempts int    `yaml:"max_attempts,omitempty"` // default 30
	ExitTimeout string `yaml:"exit_timeout,omitempty"` // default "15s"
}

// EngineConfig configures the native tunnel engine.
type EngineConfig struct {
	// ConfigFile holds the initial engine configuration payload (WireGuard UAPI text).
	ConfigFile string `yaml:"config_file,omitempty"`
}

// ProtectConfig configures socket protection and the tunnel routing table.
type ProtectConfig struct {
	FwMark uint32 `yaml:"fwmark,omitempty"` // default 0xca6c
	Table  int    `yaml:"table,omitempty"`  // default = fwmark
}

// IPCConfig configures the relay transport endpoint.
type IPCConfig struct {
	// Socket is a unix socket path, or a named pipe path on Windows.
	Socket string `yaml:"socket,omitempty"`
}

// StatusConfig configures the foreground indicator.
type StatusConfig struct {
	Title string `yaml:"title,omitempty"`
	// Renderer is "auto", "dbus", "notifier" or "log".
	Renderer string `yaml:"renderer,omitempty"`
}

// LogCaptureConfig configures the external log capture process.
type LogCaptureConfig struct {
	Command []string `yaml:"command,omitempty"`
	Path    string   `yaml:"path,omitempty"`
}

// Config is the top-level service configuration.
type Config struct {
	SessionName string           `yaml:"session_name,omitempty"`
	Tunnel      TunnelConfig     `yaml:"tunnel,omitempty"`
	Readiness   ReadinessConfig  `yaml:"readiness,omitempty"`
	Engine      EngineConfig     `yaml:"engine,omitempty"`
	Protect     ProtectConfig    `yaml:"protect,omitempty"`
	IPC         IPCConfig        `yaml:"ipc,omitempty"`
	Status      StatusConfig     `yaml:"status,omitempty"`
	LogCapture  LogCaptureConfig `yaml:"log_capture,omitempty"`
	Logging     LogConfig        `yaml:"logging,omitempty"`
}

// Session returns the configured session name or DefaultSessionName.
func (c Config) Session() string {
	if c.SessionName != "" {
		return c.SessionName
	}
	return DefaultSessionName
}

// RoutesOrDefault returns the configured routes or the IPv4 catch-all route.
func (t TunnelConfig) RoutesOrDefault() []string {
	if len(t.Routes) == 0 {
		return []string{"0.0.0.0/0"}
	}
	return append([]string(nil), t.Routes...)
}

// BlockingOrDefault reports the requested descriptor mode (default blocking).
func (t TunnelConfig) BlockingOrDefault() bool {
	if t.Blocking == nil {
		return true
	}
	return *t.Blocking
}

// MTUOrDefault returns the configured MTU or 1420.
func (t TunnelConfig) MTUOrDefault() int {
	if t.MTU > 0 {
		return t.MTU
	}
	return 1420
}

// PollInterval returns the readiness poll interval (default 1s).
func (r ReadinessConfig) PollInterval() time.Duration {
	return parseDurationOr(r.Interval, time.Second)
}

// Attempts returns the readiness poll bound (default 30).
func (r ReadinessConfig) Attempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return 30
}

// ExitWait returns how long EXIT waits for an in-flight operation (default 15s).
func (r ReadinessConfig) ExitWait() time.Duration {
	return parseDurationOr(r.ExitTimeout, 15*time.Second)
}

// Mark returns the socket mark used for protection.
func (p ProtectConfig) Mark() uint32 {
	if p.FwMark != 0 {
		return p.FwMark
	}
	return 0xca6c
}

// RoutingTable returns the routing table that holds tunnel routes.
func (p ProtectConfig) RoutingTable() int {
	if p.Table != 0 {
		return p.Table
	}
	return int(p.Mark())
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// ConfigManager handles loading, saving, and hot-reloading configuration.
type ConfigManager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
	bus      *EventBus
}

// NewConfigManager creates a config manager that reads from the given file.
func NewConfigManager(filePath string, bus *EventBus) *ConfigManager {
	return &ConfigManager{
		filePath: filePath,
		bus:      bus,
	}
}

// defaultConfig returns the configuration written when no file exists.
func defaultConfig() Config {
	return Config{
		SessionName: DefaultSessionName,
		Tunnel: TunnelConfig{
			Addresses: []string{"10.64.0.2/32"},
			Routes:    []string{"0.0.0.0/0"},
			MTU:       1420,
		},
		Readiness: ReadinessConfig{Interval: "1s", MaxAttempts: 30, ExitTimeout: "15s"},
		Status:    StatusConfig{Title: "Secure Tunnel", Renderer: "auto"},
		Logging:   LogConfig{Level: "info"},
	}
}

// Load reads and parses the configuration from disk.
// If the config file does not exist, it creates one with default values.
func (cm *ConfigManager) Load() error {
	data, err := os.ReadFile(cm.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			Log.Infof("Core", "Config %s not found, creating default config", cm.filePath)
			cm.mu.Lock()
			cm.config = defaultConfig()
			cm.mu.Unlock()
			if saveErr := cm.Save(); saveErr != nil {
				return fmt.Errorf("[Core] failed to create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("[Core] failed to read config %s: %w", cm.filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("[Core] failed to parse config: %w", err)
	}

	cm.mu.Lock()
	cm.config = cfg
	cm.mu.Unlock()

	if cm.bus != nil {
		cm.bus.Publish(Event{Type: EventConfigReloaded, Payload: cfg})
	}

	return nil
}

// Save writes the current configuration to disk.
func (cm *ConfigManager) Save() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(&cm.config)
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("[Core] failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.filePath, data, 0644); err != nil {
		return fmt.Errorf("[Core] failed to write config %s: %w", cm.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Path returns the config file path.
func (cm *ConfigManager) Path() string {
	return cm.filePath
}

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the config whenever the file changes. Blocks until ctx is cancelled.
// The parent directory is watched so atomic rename-on-save editors are handled.
func (cm *ConfigManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("[Core] create config watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(cm.filePath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("[Core] watch %s: %w", dir, err)
	}

	target := filepath.Clean(cm.filePath)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Log.Warnf("Core", "Config watcher error: %v", err)
		case <-timer.C:
			if err := cm.Load(); err != nil {
				Log.Warnf("Core", "Config reload failed, keeping previous config: %v", err)
				continue
			}
			Log.Infof("Core", "Config reloaded from %s", cm.filePath)
		}
	}
}
