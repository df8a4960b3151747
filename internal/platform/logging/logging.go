// Package logging builds the process-wide slog logger.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/spec-relay/internal/platform/env"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level slog.Level
	// File, when set, receives a copy of every record with size-based rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func ConfigFromEnv() (Config, error) {
	level, err := env.Level("RELAY_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return Config{}, err
	}
	maxSize, err := env.Int("RELAY_LOG_MAX_SIZE_MB", 50)
	if err != nil {
		return Config{}, err
	}
	maxBackups, err := env.Int("RELAY_LOG_MAX_BACKUPS", 5)
	if err != nil {
		return Config{}, err
	}
	maxAge, err := env.Int("RELAY_LOG_MAX_AGE_DAYS", 14)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Level:      level,
		File:       strings.TrimSpace(env.String("RELAY_LOG_FILE", "")),
		MaxSizeMB:  maxSize,
		MaxBackups: maxBackups,
		MaxAgeDays: maxAge,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxSizeMB <= 0 {
		return errors.New("RELAY_LOG_MAX_SIZE_MB must be positive")
	}
	if c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.New("log retention settings must be >= 0")
	}
	return nil
}

// New returns a JSON logger writing to stdout and, when configured, to a
// rotating file. The closer releases the file and is never nil.
func New(cfg Config, stdout io.Writer) (*slog.Logger, io.Closer, error) {
	if stdout == nil {
		stdout = os.Stdout
	}
	var (
		out              = stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotating)
		closer = rotating
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level}))
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
