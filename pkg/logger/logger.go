// Package logger provides the structured zap logger shared by the parse
// pipeline and the CLI. Parse phases log through the package-level helpers;
// the level can be raised or lowered at runtime.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and output shape of the global logger.
type Config struct {
	Level       string   // debug, info, warn, error
	Encoding    string   // "console" or "json"
	OutputPaths []string // defaults to stderr
	Development bool
}

var (
	mu     sync.Mutex
	root   *zap.Logger
	atomic = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the global logger. Calling it again replaces the previous
// logger, which makes it safe for tests that want their own configuration.
func Init(cfg Config) error {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	enc := cfg.Encoding
	if enc == "" {
		enc = "console"
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var encoder zapcore.Encoder
	if enc == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sink := zapcore.Lock(os.Stderr)
	if len(cfg.OutputPaths) > 0 {
		ws, _, err := zap.Open(cfg.OutputPaths...)
		if err != nil {
			return err
		}
		sink = ws
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	mu.Lock()
	defer mu.Unlock()
	atomic.SetLevel(lvl)
	root = zap.New(zapcore.NewCore(encoder, sink, atomic), opts...)
	return nil
}

// SetLevel changes the level of the current logger.
func SetLevel(l zapcore.Level) {
	atomic.SetLevel(l)
}

// Get returns the global logger, initializing a default one on first use.
func Get() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), atomic)
		root = zap.New(core)
	}
	return root
}

// Named returns a child logger scoped to a subsystem, e.g. "reader".
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { Get().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { Get().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }

// Sync flushes buffered entries. Sync on stderr fails on some platforms, so
// callers usually discard the error.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		return nil
	}
	return root.Sync()
}
