// Package dlogger builds the zap loggers shared by the storage components and the cfs CLI.
//
// Storage components log without a logger by default: the CLI injects one built from its --loglevel flag.
package dlogger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo logs block store and file index lifecycle events
	LogLevelInfo = "info"

	// LogLevelDebug logs every block operation, with a human-readable encoding
	LogLevelDebug = "debug"

	// LogLevelNone disables logging
	LogLevelNone = "none"

	// ComponentKey is the field naming the storage component which emitted a log entry
	ComponentKey = "component"
)

// GetLogger builds a zap logger for a log level.
//
// An empty level is the same as LogLevelNone.
func GetLogger(level string) (*zap.Logger, error) {
	if level == "" || level == LogLevelNone {
		return zap.NewNop(), nil
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// a burst of identical block messages is what one wants to see when debugging refcounts
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// MustGetLogger is like GetLogger, but panics on an invalid level
func MustGetLogger(level string) *zap.Logger {
	l, err := GetLogger(level)
	if err != nil {
		panic(err)
	}
	return l
}

// Component tags a logger with the name of a storage component. A nil logger yields a no-op one.
func Component(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.With(zap.String(ComponentKey, name))
}
