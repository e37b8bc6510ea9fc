package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"secure-tunnel/internal/core"
)

// defaultCaptureFile is used when log_capture.path is empty.
const defaultCaptureFile = "secure-tunnel-capture.log"

// LogCapture runs an external log collector for the lifetime of the
// service, appending its stdout and stderr to a fixed file. The service
// never reads the file.
type LogCapture struct {
	command []string
	path    string

	mu   sync.Mutex
	cmd  *exec.Cmd
	file *os.File
	done chan struct{}
}

// NewLogCapture creates a capture from config. An empty command disables it.
func NewLogCapture(cfg core.LogCaptureConfig) *LogCapture {
	path := cfg.Path
	if path == "" {
		path = filepath.Join(os.TempDir(), defaultCaptureFile)
	}
	return &LogCapture{command: cfg.Command, path: path}
}

// Path returns the capture file path.
func (lc *LogCapture) Path() string { return lc.path }

// Start launches the capture command. No-op when disabled or already running.
func (lc *LogCapture) Start() error {
	if len(lc.command) == 0 {
		return nil
	}
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.cmd != nil {
		return nil
	}

	f, err := os.OpenFile(lc.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("[Service] open capture file %s: %w", lc.path, err)
	}
	cmd := exec.Command(lc.command[0], lc.command[1:]...)
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("[Service] start %s: %w", lc.command[0], err)
	}

	done := make(chan struct{})
	go func() {
		err := cmd.Wait()
		core.Log.Debugf("Service", "Log capture %s exited: %v", lc.command[0], err)
		close(done)
	}()

	lc.cmd, lc.file, lc.done = cmd, f, done
	core.Log.Infof("Service", "Log capture started (pid=%d, file=%s)", cmd.Process.Pid, lc.path)
	return nil
}

// Stop terminates the capture command, waits for it and closes the file.
func (lc *LogCapture) Stop() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.cmd == nil {
		return nil
	}

	select {
	case <-lc.done:
	default:
		if err := lc.cmd.Process.Kill(); err != nil {
			core.Log.Debugf("Service", "Kill log capture: %v", err)
		}
		<-lc.done
	}
	err := lc.file.Close()
	lc.cmd, lc.file, lc.done = nil, nil, nil
	return err
}

// Running reports whether the capture command is still alive.
func (lc *LogCapture) Running() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.cmd == nil {
		return false
	}
	select {
	case <-lc.done:
		return false
	default:
		return true
	}
}
