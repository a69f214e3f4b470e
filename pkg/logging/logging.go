package logging

import (
	"strings"

	"github.com/canopy-network/socialx/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger from LOG_LEVEL and LOG_ENCODING.
func New() (*zap.Logger, error) {
	return build(utils.Env("LOG_LEVEL", "info"), utils.Env("LOG_ENCODING", "json"))
}

// Named is New with a "service" field attached, used by the binaries.
func Named(service string) (*zap.Logger, error) {
	l, err := New()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", service)), nil
}

func build(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch encoding {
	case "console":
		cfg.Encoding = "console"
	default:
		cfg.Encoding = "json"
	}

	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
