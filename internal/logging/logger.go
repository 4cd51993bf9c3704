// ChannelWatch - Channels DVR Alerting Sidecar
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelwatch

// Package logging provides centralized zerolog-based logging for ChannelWatch.
//
// All packages log through the global logger configured here. Output goes to
// stderr and, when a config directory is set, to a date-keyed file under
// <configDir>/logs with retention pruning.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "console"})
//	logging.Info().Str("channel", "7").Msg("watching started")
//
// Always terminate log chains with .Msg() or .Send().
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info. The legacy numeric levels map 1=info, 2=debug.
	Level string

	// Format is the output format: json or console.
	Format string

	// Directory, when non-empty, enables date-keyed log files under
	// Directory/logs in addition to stderr.
	Directory string

	// RetentionDays prunes rotated files older than this. Zero keeps all.
	RetentionDays int

	// Output overrides the stderr stream (used by tests).
	Output io.Writer
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
	}
}

var (
	log zerolog.Logger

	// mu protects initialization; log reads are lock-free by design
	// (zerolog.Logger is a value and Init is called before workers start).
	mu sync.Mutex

	rotator *dailyWriter
)

func init() {
	initLogger(DefaultConfig())
}

// Init configures the global logger. Safe to call more than once; the last
// call wins. Returns an error only when the log directory cannot be created.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	return initLogger(cfg)
}

func initLogger(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{out}
	if cfg.Directory != "" {
		dw, derr := newDailyWriter(cfg.Directory, cfg.RetentionDays)
		if derr != nil {
			return fmt.Errorf("logging: open log directory: %w", derr)
		}
		if rotator != nil {
			rotator.Close()
		}
		rotator = dw
		writers = append(writers, dw)
	}

	log = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return err
}

// parseLevel maps both zerolog names and the legacy numeric levels
// (1 = standard, 2 = verbose) onto zerolog levels.
func parseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1", "standard", "info":
		return zerolog.InfoLevel, nil
	case "2", "verbose", "debug":
		return zerolog.DebugLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return log
}

// With returns a child logger with the given component field attached.
func With(component string) *zerolog.Logger {
	l := log.With().Str("component", component).Logger()
	return &l
}

// Trace starts a trace-level log event.
func Trace() *zerolog.Event { return log.Trace() }

// Debug starts a debug-level log event.
func Debug() *zerolog.Event { return log.Debug() }

// Info starts an info-level log event.
func Info() *zerolog.Event { return log.Info() }

// Warn starts a warn-level log event.
func Warn() *zerolog.Event { return log.Warn() }

// Error starts an error-level log event.
func Error() *zerolog.Event { return log.Error() }
