// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	// Ignored when File is set.
	Output io.Writer

	// File, when set, sends logs to a size-rotated file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Pretty:     false,
		Output:     os.Stderr,
		MaxSizeMB:  100,
		MaxBackups: 10,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := outputFor(cfg)
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, NoColor: cfg.File != ""}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

func outputFor(cfg Config) io.Writer {
	if cfg.File != "" {
		return &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
	}
	if cfg.Output == nil {
		return os.Stderr
	}
	return cfg.Output
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache lookups (hit/miss, key, base key)
//   - Base path resolution through pull-through distributions
//   - Upstream error classification
//
// Info: Normal operation events
//   - Server startup/shutdown
//   - Pull-through distributions provisioned
//   - Cache partitions dropped
//   - Requests that succeeded after an upstream retry
//
// Warn: Warning conditions that don't prevent operation
//   - Corrupted or undecodable cache entries (served as misses)
//   - Upstream retry attempts and exhausted retries
//   - Failed deletion of expired entries
//
// Error: Error conditions requiring attention
//   - Cache store read/write failures
//   - Failed responses to clients
//   - Configuration errors
//
// Context Fields:
//   - cache: cache instance (content, api, index)
//   - key: derived cache key
//   - base_key: cache partition
//   - path / base_path: repository path and distribution base path
//   - status: HTTP status code
//   - error_class: upstream error class (client, server, rate_limit, network)
//   - request_id: X-Request-ID of the client request
