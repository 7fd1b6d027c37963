package logging

import (
	"go.uber.org/zap"
)

// New builds the process logger from the configured level and encoding.
// Unknown levels fall back to info rather than failing startup.
func New(level, format string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	parsed, err := zap.ParseAtomicLevel(level)
	if err != nil {
		parsed = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = parsed

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
