// Package service wires the lifecycle controller to its surroundings: the
// platform backends, the status indicator, the message relay, config
// hot-reload and external log capture.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/engine"
	"secure-tunnel/internal/ipc"
	"secure-tunnel/internal/lifecycle"
	"secure-tunnel/internal/platform"
	"secure-tunnel/internal/status"
)

// Service is the central orchestrator. It owns the single Controller
// instance for the process.
type Service struct {
	cfg     *core.ConfigManager
	bus     *core.EventBus
	plat    *platform.Platform
	version string

	engine    platform.TunnelEngine
	ctrl      *lifecycle.Controller
	relay     *ipc.Server
	publisher *status.Publisher
	capture   *LogCapture
}

// Config holds parameters for creating a new Service.
type Config struct {
	ConfigManager *core.ConfigManager // loaded
	EventBus      *core.EventBus
	Platform      *platform.Platform
	Version       string
}

// New creates a Service from a loaded configuration. The engine receives
// the initial configuration payload from engine.config_file, if set.
func New(c Config) (*Service, error) {
	cfg := c.ConfigManager.Get()

	ifc, err := platform.BuildInterfaceConfig(cfg.Session(), cfg.Tunnel)
	if err != nil {
		return nil, fmt.Errorf("[Service] tunnel config: %w", err)
	}

	eng := c.Platform.NewEngine()
	if cfg.Engine.ConfigFile != "" {
		path := resolveRelative(c.ConfigManager.Path(), cfg.Engine.ConfigFile)
		payload, conf, err := loadEngineConfig(path)
		if err != nil {
			return nil, err
		}
		if conf != nil {
			applyConfDefaults(&ifc, cfg.Tunnel, conf)
		}
		if err := eng.Configure(payload); err != nil {
			return nil, fmt.Errorf("[Service] apply engine config %s: %w", path, err)
		}
		core.Log.Infof("Service", "Engine configuration loaded from %s", path)
	}

	ctrl := lifecycle.New(lifecycle.Config{
		SessionName:     cfg.Session(),
		Interface:       ifc,
		PollInterval:    cfg.Readiness.PollInterval(),
		MaxPollAttempts: cfg.Readiness.Attempts(),
		ExitWait:        cfg.Readiness.ExitWait(),
	}, lifecycle.Deps{
		Provisioner: c.Platform.Provisioner,
		Protector:   c.Platform.Protector,
		Engine:      eng,
		Bus:         c.EventBus,
	})

	s := &Service{
		cfg:     c.ConfigManager,
		bus:     c.EventBus,
		plat:    c.Platform,
		version: c.Version,
		engine:  eng,
		ctrl:    ctrl,
		relay:   ipc.NewServer(ctrl, c.EventBus),
		publisher: status.NewPublisher(c.EventBus,
			selectRenderer(cfg.Status.Renderer, c.Platform.Notifier),
			status.Options{Title: cfg.Status.Title}),
		capture: NewLogCapture(cfg.LogCapture),
	}
	c.EventBus.Subscribe(s.onConfigReloaded, core.EventConfigReloaded)
	return s, nil
}

// Controller returns the lifecycle controller owned by the service.
func (s *Service) Controller() *lifecycle.Controller {
	return s.ctrl
}

// Run starts every component and blocks until the controller terminates
// (EXIT command or ctx cancellation) and all components have stopped.
func (s *Service) Run(ctx context.Context) error {
	ln, err := s.plat.IPC.Listener()
	if err != nil {
		return fmt.Errorf("[Service] relay listen %s: %w", s.plat.IPC.Address(), err)
	}

	if err := s.capture.Start(); err != nil {
		core.Log.Warnf("Service", "Log capture not started: %v", err)
	}
	defer s.capture.Stop()

	s.bus.Publish(core.Event{
		Type:    core.EventBackendInfo,
		Payload: core.MessagePayload{Text: backendInfo(s.version, s.engine)},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.ctrl.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-s.ctrl.Done():
		case <-gctx.Done():
			<-s.ctrl.Done()
		}
		core.Log.Infof("Service", "Controller terminated, stopping components")
		s.relay.Stop()
		cancel()
		return nil
	})
	g.Go(func() error {
		return s.relay.Serve(ln)
	})
	g.Go(func() error {
		return s.publisher.Run(gctx)
	})
	g.Go(func() error {
		s.forwardIndicatorCommands(gctx)
		return nil
	})
	g.Go(func() error {
		if err := s.cfg.Watch(gctx); err != nil {
			core.Log.Warnf("Service", "Config hot-reload disabled: %v", err)
		}
		return nil
	})

	core.Log.Infof("Service", "Running (state=%s, relay=%s)", s.ctrl.State(), s.plat.IPC.Address())
	err = g.Wait()

	if closer, ok := s.plat.Notifier.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			core.Log.Debugf("Service", "Close notifier: %v", cerr)
		}
	}
	return err
}

// forwardIndicatorCommands submits commands triggered from the indicator.
func (s *Service) forwardIndicatorCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.publisher.Commands():
			if err := s.ctrl.Submit(ctx, cmd); err != nil && !errors.Is(err, core.ErrTerminated) && ctx.Err() == nil {
				core.Log.Warnf("Service", "Indicator command %s: %v", cmd, err)
			}
		}
	}
}

func (s *Service) onConfigReloaded(e core.Event) {
	cfg, ok := e.Payload.(core.Config)
	if !ok {
		return
	}
	core.Log.SetLevels(cfg.Logging)
	core.Log.Infof("Service", "Logging levels reloaded (global=%q)", cfg.Logging.Level)
}

// selectRenderer maps status.renderer to an indicator renderer.
func selectRenderer(name string, n platform.Notifier) status.Renderer {
	switch name {
	case "log":
		return status.LogRenderer{}
	case "dbus", "notifier":
		if n != nil {
			return status.NewNotifierRenderer(n)
		}
		core.Log.Warnf("Service", "Renderer %q unavailable on this platform, using log", name)
		return status.LogRenderer{}
	case "auto", "":
		if n != nil {
			return status.NewNotifierRenderer(n)
		}
		return status.LogRenderer{}
	default:
		core.Log.Warnf("Service", "Unknown renderer %q, using auto", name)
		return selectRenderer("auto", n)
	}
}

// loadEngineConfig reads the initial engine payload. wg-quick files are
// translated to UAPI and returned parsed as well.
func loadEngineConfig(path string) (string, *engine.Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("[Service] read engine config: %w", err)
	}
	payload := string(data)
	if !engine.IsConf(payload) {
		return payload, nil, nil
	}
	conf, err := engine.ParseConf(strings.NewReader(payload))
	if err != nil {
		return "", nil, fmt.Errorf("[Service] parse engine config %s: %w", path, err)
	}
	return conf.UAPI, conf, nil
}

// applyConfDefaults fills interface settings the YAML tunnel section leaves unset.
func applyConfDefaults(ifc *platform.InterfaceConfig, t core.TunnelConfig, conf *engine.Conf) {
	if len(t.Addresses) == 0 {
		ifc.Addresses = conf.Addresses
	}
	if len(t.DNS) == 0 {
		ifc.DNS = conf.DNS
	}
	if t.MTU == 0 && conf.MTU > 0 {
		ifc.MTU = conf.MTU
	}
}

// resolveRelative resolves path against the directory of the config file.
func resolveRelative(configPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(configPath), path)
}
