package common

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Storage.Backend default = %q, want %q", cfg.Storage.Backend, "badger")
	}
	if cfg.Analysis.MaxAttempts != 3 {
		t.Errorf("Analysis.MaxAttempts default = %d, want 3", cfg.Analysis.MaxAttempts)
	}
	if got := cfg.Analysis.GetBaseDelay(); got != 2*time.Second {
		t.Errorf("GetBaseDelay() = %v, want 2s", got)
	}
	if got := cfg.Reader.GetCommitDelay(); got != 50*time.Millisecond {
		t.Errorf("GetCommitDelay() = %v, want 50ms", got)
	}
	if got := cfg.Reader.GetSettleDelay(); got != 450*time.Millisecond {
		t.Errorf("GetSettleDelay() = %v, want 450ms", got)
	}
	if cfg.Reader.DefaultLocation != "/Gn/1/1" {
		t.Errorf("Reader.DefaultLocation = %q, want /Gn/1/1", cfg.Reader.DefaultLocation)
	}
}

func TestConfig_InvalidDurationFallsBack(t *testing.T) {
	c := ServiceConfig{Timeout: "soon"}
	if got := c.GetTimeout(); got != 60*time.Second {
		t.Errorf("GetTimeout() = %v, want 60s fallback", got)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LECTIO_SERVICE_URL", "http://example.test/api")
	t.Setenv("LECTIO_LOG_LEVEL", "debug")
	t.Setenv("LECTIO_DATA_PATH", "/tmp/lectio")
	t.Setenv("LECTIO_STORAGE_BACKEND", "SQLite")
	t.Setenv("LECTIO_RATE_LIMIT", "12")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Service.BaseURL != "http://example.test/api" {
		t.Errorf("Service.BaseURL = %q", cfg.Service.BaseURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Storage.Path != filepath.Join("/tmp/lectio", "cache") {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if cfg.Service.RateLimit != 12 {
		t.Errorf("Service.RateLimit = %d, want 12", cfg.Service.RateLimit)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lectio.toml")
	content := `
[service]
base_url = "http://svc.test/api/"

[reader]
languages = ["en", "de"]
cross_books = true

[analysis]
max_attempts = 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Service.BaseURL != "http://svc.test/api" {
		t.Errorf("trailing slash not trimmed: %q", cfg.Service.BaseURL)
	}
	if len(cfg.Reader.Languages) != 2 || cfg.Reader.Languages[1] != "de" {
		t.Errorf("Reader.Languages = %v", cfg.Reader.Languages)
	}
	if !cfg.Reader.CrossBooks {
		t.Error("Reader.CrossBooks should be true")
	}
	if cfg.Analysis.MaxAttempts != 3 {
		t.Errorf("zero max_attempts should normalise to 3, got %d", cfg.Analysis.MaxAttempts)
	}
	// Untouched sections keep defaults
	if cfg.Storage.Backend != "badger" {
		t.Errorf("Storage.Backend = %q, want badger", cfg.Storage.Backend)
	}
}

func TestLoadConfig_MissingFileSkipped(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Service.RateLimit != 5 {
		t.Errorf("Service.RateLimit = %d, want 5", cfg.Service.RateLimit)
	}
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[service\nbase_url="), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveConfigPath_Explicit(t *testing.T) {
	t.Setenv("LECTIO_CONFIG", "/etc/lectio.toml")
	if got := ResolveConfigPath("mine.toml"); got != "mine.toml" {
		t.Errorf("ResolveConfigPath = %q, want mine.toml", got)
	}
	if got := ResolveConfigPath(""); got != "/etc/lectio.toml" {
		t.Errorf("ResolveConfigPath = %q, want env value", got)
	}
}

func TestNewLoggerFromConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lectio.log")
	logger, closer, err := NewLoggerFromConfig(LoggingConfig{Level: "info", Outputs: []string{"console", "file"}, FilePath: path}, true)
	if err != nil {
		t.Fatalf("NewLoggerFromConfig: %v", err)
	}
	logger.Info().Str("ref", "Gn 1:1").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain output")
	}
}

func TestNewLoggerFromConfig_UnknownOutput(t *testing.T) {
	if _, _, err := NewLoggerFromConfig(LoggingConfig{Outputs: []string{"syslog"}}, false); err == nil {
		t.Fatal("expected error for unknown output")
	}
}

func TestLoadConfig_ShippedFileMatchesDefaults(t *testing.T) {
	config, err := LoadConfig("../../config/lectio.toml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(config, NewDefaultConfig()) {
		t.Errorf("config/lectio.toml drifted from NewDefaultConfig():\n got  %+v\n want %+v", config, NewDefaultConfig())
	}
}
