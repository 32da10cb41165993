package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anneliv/orato/internal/fluency"
)

// ValidTranscriberNames lists known transcriber provider names. Used by
// [Validate] to reject unrecognised providers.
var ValidTranscriberNames = []string{"openai"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Analysis
	if cfg.Analysis.Policy != "" && !fluency.Policy(cfg.Analysis.Policy).IsValid() {
		errs = append(errs, fmt.Errorf("analysis.policy %q is invalid; valid values: standard, adaptive", cfg.Analysis.Policy))
	}
	if cfg.Analysis.TargetWPM < 0 {
		errs = append(errs, fmt.Errorf("analysis.target_wpm %.1f must not be negative", cfg.Analysis.TargetWPM))
	}
	if cfg.Analysis.PauseFloor < 0 {
		errs = append(errs, fmt.Errorf("analysis.pause_floor %.2f must not be negative", cfg.Analysis.PauseFloor))
	}
	if cfg.Analysis.RepetitionThreshold < 0 {
		errs = append(errs, fmt.Errorf("analysis.repetition_threshold %d must not be negative", cfg.Analysis.RepetitionThreshold))
	}

	// Live
	if cfg.Live.TickMs < 0 {
		errs = append(errs, fmt.Errorf("live.tick_ms %d must not be negative", cfg.Live.TickMs))
	}
	if cfg.Live.PauseThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("live.pause_threshold_ms %d must not be negative", cfg.Live.PauseThresholdMs))
	}

	// Progress
	if cfg.Progress.StreakMinimumMinutes < 0 {
		errs = append(errs, fmt.Errorf("progress.streak_minimum_minutes %d must not be negative", cfg.Progress.StreakMinimumMinutes))
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, sqlite, postgres", cfg.Storage.Backend))
	}
	switch cfg.Storage.Backend {
	case StorageSQLite:
		if cfg.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite backend"))
		}
	case StoragePostgres:
		if cfg.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for the postgres backend"))
		}
	}

	// Transcriber
	if cfg.Transcriber.Name != "" {
		known := false
		for _, name := range ValidTranscriberNames {
			if cfg.Transcriber.Name == name {
				known = true
				break
			}
		}
		if !known {
			errs = append(errs, fmt.Errorf("transcriber.name %q is invalid; valid values: %v", cfg.Transcriber.Name, ValidTranscriberNames))
		}
		if cfg.Transcriber.APIKey == "" {
			errs = append(errs, fmt.Errorf("transcriber.api_key is required when transcriber.name is set"))
		}
	}

	return errors.Join(errs...)
}

// SlogLevel maps the configured log level onto an [slog.Level]. An empty or
// unknown level falls back to info.
func (s ServerConfig) SlogLevel() slog.Level {
	switch s.LogLevel {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
