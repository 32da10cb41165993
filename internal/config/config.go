// Package config provides the configuration schema and loader for the Orato
// speech practice server.
package config

// LogLevel controls log verbosity for the Orato server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageBackend selects where sessions and goals are persisted.
type StorageBackend string

const (
	// StorageMemory keeps everything in process memory. Data is lost on
	// restart; intended for development and tests.
	StorageMemory StorageBackend = "memory"

	// StorageSQLite persists to a single local database file.
	StorageSQLite StorageBackend = "sqlite"

	// StoragePostgres persists to a PostgreSQL database.
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for Orato.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Live        LiveConfig        `yaml:"live"`
	Progress    ProgressConfig    `yaml:"progress"`
	Storage     StorageConfig     `yaml:"storage"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
}

// ServerConfig holds network and logging settings for the Orato server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AnalysisConfig tunes the fluency calculator.
type AnalysisConfig struct {
	// Policy selects the scoring policy: "standard" or "adaptive".
	Policy string `yaml:"policy"`

	// TargetWPM is the personal pace target used by the adaptive policy.
	TargetWPM float64 `yaml:"target_wpm"`

	// PauseFloor is the minimum inter-segment gap, in seconds, counted as a
	// pause. Zero keeps the policy default.
	PauseFloor float64 `yaml:"pause_floor"`

	// RepetitionThreshold is the occurrence count against which the adaptive
	// policy scales repetition penalties. Zero keeps the default.
	RepetitionThreshold int `yaml:"repetition_threshold"`
}

// LiveConfig tunes the live metrics tracker.
type LiveConfig struct {
	// TickMs is the recompute interval in milliseconds. Zero keeps the
	// default of 500.
	TickMs int `yaml:"tick_ms"`

	// PauseThresholdMs is the silence length, in milliseconds, counted as a
	// pause during live tracking. Zero keeps the default of 1000.
	PauseThresholdMs int `yaml:"pause_threshold_ms"`
}

// ProgressConfig tunes the progress aggregator.
type ProgressConfig struct {
	// StreakMinimumMinutes is the daily practice floor for streak days.
	// Zero keeps the default of 5.
	StreakMinimumMinutes int `yaml:"streak_minimum_minutes"`
}

// StorageConfig selects and configures the session store backend.
type StorageConfig struct {
	// Backend selects the store implementation. Empty defaults to "memory".
	Backend StorageBackend `yaml:"backend"`

	// Path is the database file location for the sqlite backend.
	Path string `yaml:"path"`

	// DSN is the connection string for the postgres backend.
	DSN string `yaml:"dsn"`
}

// TranscriberConfig configures the speech-to-text provider.
type TranscriberConfig struct {
	// Name selects the provider implementation. Currently "openai" or
	// empty to run without transcription (live tracking only).
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Use it to
	// point at an API-compatible local Whisper server.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g. "whisper-1").
	Model string `yaml:"model"`

	// Language is the ISO 639-1 recognition hint (e.g. "en"). Empty lets
	// the provider auto-detect.
	Language string `yaml:"language"`
}
