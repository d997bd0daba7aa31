package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hackgods/practice-booking-engine/internal/config"
)

// New builds the process logger. Production also writes to cfg.LogOutputFile when set.
func New(cfg config.Config) (*zap.Logger, error) {
	outputPaths := []string{"stdout"}
	errorOutputPaths := []string{"stderr"}
	if cfg.IsProduction() && cfg.LogOutputFile != "" {
		outputPaths = append(outputPaths, cfg.LogOutputFile)
		errorOutputPaths = append(errorOutputPaths, cfg.LogOutputFile)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel)),
		Development:      !cfg.IsProduction(),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: errorOutputPaths,
	}

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return log.With(zap.String("env", cfg.Env)), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
