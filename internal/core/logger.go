package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// LogConfig holds logging configuration from YAML.
type LogConfig struct {
	Level      string            `yaml:"level,omitempty"`
	Components map[string]string `yaml:"components,omitempty"`
	// File, when set, receives log output in append mode instead of stderr.
	File string `yaml:"file,omitempty"`
}

// Logger provides per-component log level filtering on top of a logrus sink.
type Logger struct {
	mu          sync.RWMutex
	globalLevel LogLevel
	components  map[string]LogLevel // lowercase component name → level
	out         *logrus.Logger
	file        *os.File
}

// ParseLevel converts a string level name to LogLevel.
// Returns LevelInfo for unrecognized values.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "none":
		return LevelOff
	default:
		return LevelInfo
	}
}

// NewLogger creates a Logger from config writing to stderr.
func NewLogger(cfg LogConfig) *Logger {
	out := logrus.New()
	out.SetOutput(os.Stderr)
	out.SetLevel(logrus.DebugLevel) // filtering happens in levelFor
	out.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})

	l := &Logger{out: out}
	l.SetLevels(cfg)
	return l
}

// SetLevels replaces the global and per-component levels.
func (l *Logger) SetLevels(cfg LogConfig) {
	components := make(map[string]LogLevel, len(cfg.Components))
	for name, level := range cfg.Components {
		components[strings.ToLower(name)] = ParseLevel(level)
	}
	l.mu.Lock()
	l.globalLevel = ParseLevel(cfg.Level)
	l.components = components
	l.mu.Unlock()
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.SetOutput(w)
}

// OpenFile appends log output to path, closing any previously opened file.
func (l *Logger) OpenFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("[Core] open log file %s: %w", path, err)
	}
	l.mu.Lock()
	prev := l.file
	l.file = f
	l.mu.Unlock()

	l.out.SetOutput(f)
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close releases the log file, if any, and falls back to stderr.
func (l *Logger) Close() error {
	l.mu.Lock()
	f := l.file
	l.file = nil
	l.mu.Unlock()

	l.out.SetOutput(os.Stderr)
	if f != nil {
		return f.Close()
	}
	return nil
}

// levelFor returns the effective log level for a component tag.
func (l *Logger) levelFor(tag string) LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if lvl, ok := l.components[strings.ToLower(tag)]; ok {
		return lvl
	}
	return l.globalLevel
}

func (l *Logger) entry(tag string) *logrus.Entry {
	return l.out.WithField("component", tag)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelDebug {
		l.entry(tag).Debugf(format, args...)
	}
}

// Infof logs at info level.
func (l *Logger) Infof(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelInfo {
		l.entry(tag).Infof(format, args...)
	}
}

// Warnf logs at warn level.
func (l *Logger) Warnf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelWarn {
		l.entry(tag).Warnf(format, args...)
	}
}

// Errorf logs at error level.
func (l *Logger) Errorf(tag, format string, args ...any) {
	if l.levelFor(tag) <= LevelError {
		l.entry(tag).Errorf(format, args...)
	}
}

// Fatalf always logs and calls os.Exit(1).
func (l *Logger) Fatalf(tag, format string, args ...any) {
	l.entry(tag).Errorf(format, args...)
	os.Exit(1)
}

// Log is the global logger instance. Initialized with default (info level).
var Log = NewLogger(LogConfig{})
