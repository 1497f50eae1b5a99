// Package ceplog provides JSON-lines structured logging for the CEP
// engine and its CLI, per the error-handling design's requirement that
// every error be logged with function name, line, and a descriptive
// message.
package ceplog

import (
	"io"
	"log/slog"
	"os"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr).
	Output io.Writer
	// Level is the minimum log level (default: slog.LevelInfo).
	Level slog.Level
	// Debug enables debug-level logging, overriding Level.
	Debug bool
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{Output: os.Stderr, Level: slog.LevelInfo}
}

// New creates a JSON-lines structured logger with function name and line
// number captured via slog's source attribute.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}
	return slog.New(slog.NewJSONHandler(output, opts))
}

// NewFromEnv builds a logger from CEP_DEBUG=1.
func NewFromEnv() *slog.Logger {
	cfg := DefaultConfig()
	if os.Getenv("CEP_DEBUG") == "1" {
		cfg.Debug = true
	}
	return New(cfg)
}

// LogEngineStarted logs engine construction.
func LogEngineStarted(logger *slog.Logger, databaseName, configDir string, maxRecord int) {
	logger.Info("engine started",
		"database_name", databaseName,
		"config_dir", configDir,
		"max_record", maxRecord,
	)
}

// LogRowDropped logs a per-row step failure recovered locally per the
// error propagation policy: the offending row is logged and dropped, the
// surrounding transaction continues. fn names the originating operation
// (e.g. "flushToMemory", "spill").
func LogRowDropped(logger *slog.Logger, fn, traceID, table string, err error) {
	logger.Error("row dropped during step",
		"fn", fn,
		"trace_id", traceID,
		"table", table,
		"error", err,
	)
}

// LogVacuumTriggered logs a vacuum pass.
func LogVacuumTriggered(logger *slog.Logger, fn string, recordCounter, vacuumRecord int64) {
	logger.Info("vacuum triggered",
		"fn", fn,
		"record_counter", recordCounter,
		"vacuum_record", vacuumRecord,
	)
}

// LogSpillFailed logs a spill-phase failure; evicted rows for this call
// are dropped per the error propagation policy.
func LogSpillFailed(logger *slog.Logger, fn, traceID string, err error) {
	logger.Error("spill failed, evicted rows dropped",
		"fn", fn,
		"trace_id", traceID,
		"error", err,
	)
}

// LogConfigReloaded logs a hot-reload of the watched config file.
func LogConfigReloaded(logger *slog.Logger, fn, path string) {
	logger.Info("configuration reloaded", "fn", fn, "path", path)
}

// LogShutdown logs a clean engine shutdown.
func LogShutdown(logger *slog.Logger, fn, databaseName string) {
	logger.Info("engine shutting down", "fn", fn, "database_name", databaseName)
}
