// Package logging builds the service logger: JSON lines to stderr and to a
// size-rotated file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// FilePath is the rotated log file; empty disables file output.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("ensure log dir: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rotator(opts)), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func rotator(opts Options) *lumberjack.Logger {
	size, backups, age := opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays
	if size <= 0 {
		size = 50
	}
	if backups <= 0 {
		backups = 5
	}
	if age <= 0 {
		age = 28
	}
	return &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    size,
		MaxBackups: backups,
		MaxAge:     age,
		Compress:   true,
	}
}
