// Package logging wraps zap with the constructors used across hitchplan.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the structured logger handed to every component.
type Logger = *zap.SugaredLogger

// NewLoggerConfig returns the console config used by the CLI: no
// stacktraces, ISO8601 timestamps, colored levels.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a named Info+ logger writing to stderr.
func NewLogger(name string) Logger {
	return newAtLevel(name, zap.InfoLevel)
}

// NewDebugLogger returns a named Debug+ logger writing to stderr.
func NewDebugLogger(name string) Logger {
	return newAtLevel(name, zap.DebugLevel)
}

func newAtLevel(name string, level zapcore.Level) Logger {
	cfg := NewLoggerConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		return NewNop()
	}
	return l.Sugar().Named(name)
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return zap.NewNop().Sugar()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// TB is the part of testing.TB the observed logger needs. GinkgoT()
// satisfies it too.
type TB interface {
	Helper()
	Name() string
}

// NewObservedTestLogger returns a Debug+ logger whose entries can be
// inspected by the test.
func NewObservedTestLogger(tb TB) (Logger, *observer.ObservedLogs) {
	tb.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar().Named(tb.Name()), logs
}
