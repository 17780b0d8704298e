// Package common provides shared utilities for lectio
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for lectio
type Config struct {
	Environment string          `toml:"environment"`
	Service     ServiceConfig   `toml:"service"`
	Storage     StorageConfig   `toml:"storage"`
	Reader      ReaderConfig    `toml:"reader"`
	Analysis    AnalysisConfig  `toml:"analysis"`
	Audio       AudioConfig     `toml:"audio"`
	Recording   RecordingConfig `toml:"recording"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServiceConfig holds the remote analysis service configuration
type ServiceConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ServiceConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

// StorageConfig holds the client-local key-value store configuration.
type StorageConfig struct {
	Backend    string `toml:"backend"` // "badger" (default), "sqlite" or "memory"
	Path       string `toml:"path"`
	MaxEntryKB int    `toml:"max_entry_kb"` // largest cache entry accepted, 0 = unlimited
}

// ReaderConfig holds navigation and presentation settings
type ReaderConfig struct {
	DefaultLocation string   `toml:"default_location"`
	Languages       []string `toml:"languages"`
	CrossBooks      bool     `toml:"cross_books"`
	CommitDelay     string   `toml:"commit_delay"`
	SettleDelay     string   `toml:"settle_delay"`
	Prefetch        bool     `toml:"prefetch"` // analyse the next verse in the background
}

// GetCommitDelay returns the delay before a navigation commits the new position
func (c *ReaderConfig) GetCommitDelay() time.Duration {
	return parseDuration(c.CommitDelay, 50*time.Millisecond)
}

// GetSettleDelay returns the delay between commit and returning to idle
func (c *ReaderConfig) GetSettleDelay() time.Duration {
	return parseDuration(c.SettleDelay, 450*time.Millisecond)
}

// AnalysisConfig holds the rate-limit retry policy
type AnalysisConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
}

// GetBaseDelay parses and returns the backoff base delay
func (c *AnalysisConfig) GetBaseDelay() time.Duration {
	return parseDuration(c.BaseDelay, 2*time.Second)
}

// AudioConfig holds the playback command. The clip is written to its stdin.
type AudioConfig struct {
	Player []string `toml:"player"`
}

// RecordingConfig holds the capture command. It must write WAV to stdout.
type RecordingConfig struct {
	Command []string `toml:"command"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string   `toml:"level"`
	Outputs  []string `toml:"outputs"`
	FilePath string   `toml:"file_path"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Service: ServiceConfig{
			BaseURL:   "http://localhost:8000/api",
			RateLimit: 5,
			Timeout:   "60s",
		},
		Storage: StorageConfig{
			Backend:    "badger",
			Path:       "data/cache",
			MaxEntryKB: 5 * 1024,
		},
		Reader: ReaderConfig{
			DefaultLocation: "/Gn/1/1",
			Languages:       []string{"en", "es", "fr", "de", "it", "pt"},
			CrossBooks:      false,
			CommitDelay:     "50ms",
			SettleDelay:     "450ms",
			Prefetch:        false,
		},
		Analysis: AnalysisConfig{
			MaxAttempts: 3,
			BaseDelay:   "2s",
		},
		Audio: AudioConfig{
			Player: []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"},
		},
		Recording: RecordingConfig{
			Command: []string{"arecord", "-q", "-f", "cd", "-t", "wav"},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Outputs:  []string{"file"},
			FilePath: "./logs/lectio.log",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	normalizeConfig(config)

	return config, nil
}

// ResolveConfigPath returns the first config file candidate:
// explicit path, LECTIO_CONFIG, lectio.toml beside the binary, then config/lectio.toml.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("LECTIO_CONFIG"); env != "" {
		return env
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "lectio.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "config/lectio.toml"
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LECTIO_ENV"); env != "" {
		config.Environment = env
	}

	if u := os.Getenv("LECTIO_SERVICE_URL"); u != "" {
		config.Service.BaseURL = u
	}

	if rl := os.Getenv("LECTIO_RATE_LIMIT"); rl != "" {
		if n, err := strconv.Atoi(rl); err == nil {
			config.Service.RateLimit = n
		}
	}

	if level := os.Getenv("LECTIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("LECTIO_DATA_PATH"); path != "" {
		config.Storage.Path = filepath.Join(path, "cache")
	}

	if backend := os.Getenv("LECTIO_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = strings.ToLower(backend)
	}
}

func normalizeConfig(config *Config) {
	config.Service.BaseURL = strings.TrimRight(config.Service.BaseURL, "/")
	if config.Service.RateLimit <= 0 {
		config.Service.RateLimit = 5
	}
	if config.Analysis.MaxAttempts <= 0 {
		config.Analysis.MaxAttempts = 3
	}
	if config.Storage.Backend == "" {
		config.Storage.Backend = "badger"
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
