// Package logger builds the zap loggers used by every component.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger.
// level:   "debug", "info", "warn", "error" (default "info")
// format:  "json" or "console" (default "json")
// service: added to every entry as service_name when non-empty
func New(level, format, service string) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil || level == "" {
		zapLevel = zapcore.InfoLevel
	}

	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.OutputPaths = []string{"stdout"}
		config.ErrorOutputPaths = []string{"stderr"}
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := config.Build()
	if err != nil {
		return nil, err
	}

	if service != "" {
		base = base.With(zap.String("service_name", service))
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}
	return base, nil
}
