package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// ResetPolicy decides what a lifecycle teardown does with live handlers.
type ResetPolicy string

const (
	// ResetClear clears every registry at teardown. This is the default.
	ResetClear ResetPolicy = "clear"

	// ResetPersist keeps handlers registered across teardowns and only
	// reports them.
	ResetPersist ResetPolicy = "persist"
)

// LeakStoreKind selects where teardown leak reports are kept.
type LeakStoreKind string

const (
	// LeakStoreMemory keeps reports in process memory. This is the default.
	LeakStoreMemory LeakStoreKind = "memory"

	// LeakStoreSQLite keeps reports in a SQLite database at LeakStorePath.
	LeakStoreSQLite LeakStoreKind = "sqlite"
)

// Settings configures a lifecycle host and the hub it owns.
// The zero value is not valid; start from Default().
type Settings struct {
	// ResetPolicy is applied by Host.Teardown.
	ResetPolicy ResetPolicy `yaml:"reset_policy" json:"reset_policy"`

	// LeakStore selects the leak report store.
	LeakStore LeakStoreKind `yaml:"leak_store" json:"leak_store"`

	// LeakStorePath is the database path when LeakStore is "sqlite".
	// ":memory:" is accepted.
	LeakStorePath string `yaml:"leak_store_path" json:"leak_store_path"`

	// Metrics enables OpenTelemetry metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Tracing enables OpenTelemetry spans.
	Tracing bool `yaml:"tracing" json:"tracing"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the settings used when no file is given.
func Default() Settings {
	return Settings{
		ResetPolicy: ResetClear,
		LeakStore:   LeakStoreMemory,
		LogLevel:    "info",
	}
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	switch s.ResetPolicy {
	case ResetClear, ResetPersist:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, s.ResetPolicy)
	}

	switch s.LeakStore {
	case LeakStoreMemory:
	case LeakStoreSQLite:
		if s.LeakStorePath == "" {
			return fmt.Errorf("leak_store_path is required for %s store", s.LeakStore)
		}
	default:
		return fmt.Errorf("unknown leak store %q", s.LeakStore)
	}

	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level, or info if it is invalid.
func (s Settings) Level() slog.Level {
	lvl, err := ParseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ParseLevel converts a level name to a slog.Level.
// An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
