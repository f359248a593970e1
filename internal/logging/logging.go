// Package logging builds the zap logger used by the store and the CLI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/systemshift/treestore/internal/config"
)

// Rotation limits for file output.
const (
	maxSizeMB  = 50
	maxBackups = 5
	maxAgeDays = 28
)

// New builds a logger from cfg. Output "stderr" and "stdout" name the
// standard streams; anything else is a file path, rotated by lumberjack.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	var out zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stderr":
		out = zapcore.Lock(os.Stderr)
	case "stdout":
		out = zapcore.Lock(os.Stdout)
	default:
		w, err := fileWriter(cfg.Output)
		if err != nil {
			return nil, err
		}
		out = w
	}
	return NewWithWriter(cfg, out)
}

// NewWithWriter builds a logger from cfg that writes to out, ignoring
// cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(encCfg), nil
	case "", "console":
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func fileWriter(path string) (zapcore.WriteSyncer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   abs,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}), nil
}
