// Package logging builds the process-wide zap logger shared by the
// producer, the consumers, the coordinator, and the HTTP surface.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the root logger. Development gets the colored console
// encoder; production gets JSON with ISO-8601 timestamps and sampling
// off, since per-item warnings are the audit trail for failed scrapes.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.DisableStacktrace = false
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Named returns a child logger for one pipeline component. Several
// components log from a single process; the name keeps their output
// separable.
func Named(logger *zap.Logger, component string) *zap.Logger {
	return logger.Named(component)
}
