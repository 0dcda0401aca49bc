// Package log implements structured logging using slog.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/pcaplens/internal/config"
)

// Outputs holds the log destinations opened by Init. Close flushes the
// Loki batch and releases the log file.
type Outputs struct {
	closers []io.Closer
}

// Close closes every output, returning the first error.
func (o *Outputs) Close() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}

// Init initializes the global logger on stderr plus the configured outputs.
// Stdout is left to results.
func Init(cfg config.LogConfig) (*Outputs, error) {
	return InitWriter(os.Stderr, cfg)
}

// InitWriter is Init with an explicit console writer.
func InitWriter(console io.Writer, cfg config.LogConfig) (*Outputs, error) {
	handler, outputs, err := NewHandler(console, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	return outputs, nil
}

// NewHandler builds a handler writing to console and the configured outputs
// without touching the global logger.
func NewHandler(console io.Writer, cfg config.LogConfig) (slog.Handler, *Outputs, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	outputs := &Outputs{}
	writers := []io.Writer{console}

	if cfg.Outputs.File.Enabled {
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file output: %w", err)
		}
		writers = append(writers, w)
		outputs.closers = append(outputs.closers, w)
	}

	if cfg.Outputs.Loki.Enabled {
		w, err := createLokiWriter(cfg.Outputs.Loki)
		if err != nil {
			outputs.Close()
			return nil, nil, fmt.Errorf("failed to create loki output: %w", err)
		}
		writers = append(writers, w)
		outputs.closers = append(outputs.closers, w)
	}

	multiWriter := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(multiWriter, opts)
	case "text", "":
		handler = slog.NewTextHandler(multiWriter, opts)
	default:
		outputs.Close()
		return nil, nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	return handler, outputs, nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (*lumberjack.Logger, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}

// createLokiWriter creates a Loki writer.
func createLokiWriter(lc config.LokiOutputConfig) (*LokiWriter, error) {
	if lc.Endpoint == "" {
		return nil, fmt.Errorf("loki output requires 'endpoint' field")
	}
	return NewLokiWriter(LokiConfig{
		Endpoint:      lc.Endpoint,
		Labels:        lc.Labels,
		BatchSize:     lc.BatchSize,
		FlushInterval: lc.BatchTimeout,
	})
}
