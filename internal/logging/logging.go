// Package logging builds the process logger: human-readable lines on stderr
// at the requested level, teed into a JSON log file that keeps everything
// down to debug.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/patchwise/internal/cache"
)

// Options configures New.
type Options struct {
	// Level is the console level: debug, info, warn or error.
	Level string
	// File is the JSON log path. Empty selects DefaultFile; "none" disables
	// the file.
	File string
	// Console receives the human-readable stream. Defaults to os.Stderr.
	Console io.Writer
}

// DefaultFile returns the log path under the user cache directory.
func DefaultFile() (string, error) {
	dir, err := cache.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "patchwise.log"), nil
}

// New returns the logger and a cleanup func that syncs and closes the file.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		l, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.TimeKey = ""
	consoleCfg.CallerKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(zapcore.AddSync(console)), level),
	}

	closeFile := func() {}
	path := opts.File
	if path == "" {
		p, err := DefaultFile()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	if path != "none" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(f), zapcore.DebugLevel))
		closeFile = func() { f.Close() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		closeFile()
	}, nil
}
