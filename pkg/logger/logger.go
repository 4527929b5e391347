// Package logger provides structured logging for GramForge
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

// RunIDKey is the context key carrying the analysis run ID across the
// pipeline, so any component can tag its log lines with the run.
const RunIDKey contextKey = "run_id"

// Config holds logger settings.
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

var (
	global *zap.Logger
	once   sync.Once
)

// Init builds the process-wide logger. Subsequent calls are no-ops.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		global, err = build(cfg)
	})
	return err
}

// Get returns the process-wide logger, initializing a JSON info-level
// logger on first use if Init was never called.
func Get() *zap.Logger {
	if global == nil {
		if err := Init(Config{Level: "info", Encoding: "json"}); err != nil || global == nil {
			global = zap.Must(zap.NewProduction())
		}
	}
	return global
}

// WithContext returns the global logger annotated with the run ID from
// ctx, if one is present.
func WithContext(ctx context.Context) *zap.Logger {
	log := Get()
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		log = log.With(zap.String("run_id", runID))
	}
	return log
}

// Sync flushes buffered entries. Safe to call before Init.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}

func build(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapCfg.Build()
}
