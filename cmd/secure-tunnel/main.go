package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
	"secure-tunnel/internal/service"
)

// Build info, injected via ldflags at compile time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

const appName = "Secure Tunnel"

// shutdownTimeout bounds the time between a signal and a forced exit.
const shutdownTimeout = 30 * time.Second

func main() {
	// Handle platform subcommands (install, uninstall, ...) first.
	if len(os.Args) > 1 && runSubcommand(os.Args[1], os.Args[2:]) {
		return
	}

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	serviceMode := flag.Bool("service", false, "Run under the OS service manager")
	flag.Parse()

	if *showVersion {
		fmt.Printf("secure-tunnel %s (commit=%s, built=%s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	resolvedConfig := resolveRelativeToExe(*configPath)
	if err := host(*serviceMode, func(ctx context.Context) error {
		return run(ctx, resolvedConfig)
	}); err != nil {
		core.Log.Fatalf("Core", "Fatal: %v", err)
	}
}

// run loads the configuration and runs the service until EXIT or ctx cancellation.
func run(ctx context.Context, configPath string) error {
	bus := core.NewEventBus()
	cfgManager := core.NewConfigManager(configPath, bus)
	if err := cfgManager.Load(); err != nil {
		return err
	}
	cfg := cfgManager.Get()

	core.Log.SetLevels(cfg.Logging)
	if cfg.Logging.File != "" {
		if err := core.Log.OpenFile(resolveRelativeTo(configPath, cfg.Logging.File)); err != nil {
			return err
		}
		defer core.Log.Close()
	}
	core.Log.Infof("Core", "Secure Tunnel %s starting (config=%s)", version, configPath)

	plat, err := newPlatform(platform.Options{
		AppName:      appName,
		FwMark:       cfg.Protect.Mark(),
		RoutingTable: cfg.Protect.RoutingTable(),
		IPCAddress:   cfg.IPC.Socket,
	})
	if err != nil {
		return err
	}

	svc, err := service.New(service.Config{
		ConfigManager: cfgManager,
		EventBus:      bus,
		Platform:      plat,
		Version:       version,
	})
	if err != nil {
		return err
	}

	err = svc.Run(ctx)
	core.Log.Infof("Core", "Shutdown complete.")
	return err
}

// runConsole runs fn until it returns or SIGINT/SIGTERM arrives. After a
// signal, fn has shutdownTimeout to return before the process is killed.
func runConsole(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- fn(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	core.Log.Infof("Core", "Shutting down...")
	select {
	case err := <-errCh:
		return err
	case <-time.After(shutdownTimeout):
		core.Log.Errorf("Core", "Shutdown timed out, forcing exit.")
		os.Exit(1)
		return nil
	}
}

// resolveRelativeToExe resolves a relative path against the directory containing
// the running executable. Absolute paths are returned unchanged.
func resolveRelativeToExe(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		core.Log.Warnf("Core", "Cannot determine executable path, using %q as-is: %v", path, err)
		return path
	}
	return filepath.Join(filepath.Dir(exe), path)
}

// resolveRelativeTo resolves path against the directory of configPath.
func resolveRelativeTo(configPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
