package logging

import (
	"github.com/ahmedkamals/geostream/internal/config"
	"github.com/ahmedkamals/geostream/internal/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger writing to stderr.
func New(c config.Log) (*zap.Logger, error) {
	const op errors.Operation = "logging.New"

	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if c.Encoding == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         c.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, errors.E(op, errors.Failure, err)
	}

	return logger, nil
}
