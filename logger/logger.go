package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is re-exported so callers never import zap directly.
type Field = zap.Field

// Field constructors used throughout the codebase.
var (
	String  = zap.String
	Int     = zap.Int
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Time    = zap.Time
	Any     = zap.Any
)

// Logger provides the three log levels we need throughout the codebase.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// New creates a production logger (JSON encoding, ISO8601 timestamps) at the
// requested level ("debug", "info", "warn", "error").
func New(level string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// Nop returns a logger that discards everything. Handy as a default.
func Nop() Logger { return &zapLogger{z: zap.NewNop()} }
