// Package log provides the process-wide structured logger.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Logger is the logging surface used outside the core packages.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newAdapter(logrus.New())
)

// GetLogger returns the global logger. Before Init it writes text to stderr
// at info level.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the global logger.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Init builds a logger from cfg and installs it as the global logger.
func Init(cfg Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// New builds a logger from cfg without installing it.
func New(cfg Config) (Logger, error) {
	cfg.applyDefaults()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetReportCaller(cfg.ReportCaller)
	switch cfg.Format {
	case FormatPattern:
		l.SetFormatter(&formatter{pattern: cfg.Pattern, time: cfg.Time})
	case FormatPrefixed:
		l.SetFormatter(&prefixed.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: cfg.Time,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	out := NewMultiWriter()
	if !cfg.Quiet {
		out.Add(os.Stderr)
	}
	if cfg.File.Filename != "" {
		out.AddFileAppender(cfg.File)
	}
	l.SetOutput(out)

	return newAdapter(l), nil
}
