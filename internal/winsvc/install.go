//go:build windows

package winsvc

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

const (
	pollInterval = 500 * time.Millisecond
	pollAttempts = 30
)

// withService opens the installed service and calls fn with it.
func withService(fn func(s *mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return &ServiceError{Op: "connect to SCM", Err: err}
	}
	defer m.Disconnect()

	s, err := m.OpenService(ServiceName)
	if err != nil {
		return &ServiceError{Op: "open service", Err: fmt.Errorf("service %q not found: %w", ServiceName, err)}
	}
	defer s.Close()
	return fn(s)
}

// waitState polls until the service reaches want or stopped unexpectedly.
func waitState(s *mgr.Service, op string, want svc.State) error {
	for i := 0; i < pollAttempts; i++ {
		status, err := s.Query()
		if err != nil {
			return &ServiceError{Op: "query service status", Err: err}
		}
		if status.State == want {
			return nil
		}
		if want == svc.Running && status.State == svc.Stopped && i > 0 {
			return &ServiceError{Op: op, Err: fmt.Errorf("service stopped unexpectedly")}
		}
		time.Sleep(pollInterval)
	}
	return &ServiceError{Op: op, Err: fmt.Errorf("timeout waiting for state %d", want)}
}

// InstallService registers the service with the SCM. The service is started
// with --service and, when configPath is set, --config configPath.
func InstallService(exePath, configPath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return &ServiceError{Op: "connect to SCM", Err: err}
	}
	defer m.Disconnect()

	if s, err := m.OpenService(ServiceName); err == nil {
		s.Close()
		return &ServiceError{Op: "install", Err: fmt.Errorf("service %q already exists", ServiceName)}
	}

	args := []string{"-service"}
	if configPath != "" {
		args = append(args, "-config", configPath)
	}

	s, err := m.CreateService(ServiceName, exePath, mgr.Config{
		DisplayName:      ServiceDisplayName,
		Description:      ServiceDescription,
		StartType:        mgr.StartManual,
		ServiceStartName: "LocalSystem",
	}, args...)
	if err != nil {
		return &ServiceError{Op: "create service", Err: err}
	}
	defer s.Close()

	// Restart on crashes only; EXIT ends the service with a zero code.
	_ = s.SetRecoveryActions([]mgr.RecoveryAction{
		{Type: mgr.ServiceRestart, Delay: 5 * time.Second},
		{Type: mgr.ServiceRestart, Delay: 30 * time.Second},
	}, 86400)
	return nil
}

// UninstallService stops and removes the service.
func UninstallService() error {
	return withService(func(s *mgr.Service) error {
		if _, err := s.Control(svc.Stop); err == nil {
			_ = waitState(s, "stop service", svc.Stopped)
		}
		if err := s.Delete(); err != nil {
			return &ServiceError{Op: "delete service", Err: err}
		}
		return nil
	})
}

// StartService starts the service and waits until it is running.
func StartService() error {
	return withService(func(s *mgr.Service) error {
		if err := s.Start(); err != nil {
			return &ServiceError{Op: "start service", Err: err}
		}
		return waitState(s, "start service", svc.Running)
	})
}

// StopService stops the service and waits until it is stopped.
func StopService() error {
	return withService(func(s *mgr.Service) error {
		if _, err := s.Control(svc.Stop); err != nil {
			return &ServiceError{Op: "stop service", Err: err}
		}
		return waitState(s, "stop service", svc.Stopped)
	})
}

// IsServiceInstalled checks if the service is registered in the SCM.
func IsServiceInstalled() bool {
	return withService(func(*mgr.Service) error { return nil }) == nil
}
