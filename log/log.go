// Package log holds the process-wide structured logger.
//
// The logger is a no-op until Init is called. Init is idempotent: the first call
// builds and installs the logger, every later call returns that same logger
// without side effects, so tests and embedders can call it freely.
package log

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process logger.
type Options struct {
	// Level is the minimum level: debug, info, warn or error. Default info.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

var (
	mu       sync.RWMutex
	logger   = zap.NewNop()
	initOnce sync.Once
	initErr  error
)

// Init builds the process logger from opts on first use.
func Init(opts Options) (*zap.Logger, error) {
	initOnce.Do(func() {
		l, err := build(opts)
		if err != nil {
			initErr = err
			return
		}
		SetLogger(l)
	})
	return L(), initErr
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger. A nil logger installs a no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Or returns l, or the process logger when l is nil.
func Or(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return L()
}

func build(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}
