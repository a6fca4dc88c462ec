// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used by every engine. Fields are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Sync() error
}

type zapLogger struct {
	log *zap.SugaredLogger
}

// New creates a new logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with a specific level.
func NewWithLevel(level string) Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return &noOpLogger{}
	}

	return &zapLogger{log: log.Sugar()}
}

// NewLogger creates a named logger at info level.
func NewLogger(name string) Logger {
	base := NewWithLevel("info")
	if zl, ok := base.(*zapLogger); ok {
		return &zapLogger{log: zl.log.Named(name)}
	}
	return base
}

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a no-op logger instance.
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, fields ...interface{}) { l.log.Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...interface{})  { l.log.Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...interface{})  { l.log.Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...interface{}) { l.log.Errorw(msg, fields...) }
func (l *zapLogger) Sync() error                             { return l.log.Sync() }

type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, fields ...interface{}) {}
func (n *noOpLogger) Info(msg string, fields ...interface{})  {}
func (n *noOpLogger) Warn(msg string, fields ...interface{})  {}
func (n *noOpLogger) Error(msg string, fields ...interface{}) {}
func (n *noOpLogger) Sync() error                             { return nil }
