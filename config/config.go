// Package config loads cardledger configuration from defaults, an optional
// YAML file, a .env file and CARDLEDGER_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete cardledger configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Data    DataConfig    `yaml:"data"`
	Upload  UploadConfig  `yaml:"upload"`
	Session SessionConfig `yaml:"session"`
	Console ConsoleConfig `yaml:"console"`
	Export  ExportConfig  `yaml:"export"`
	Log     LogConfig     `yaml:"log"`
}

// APIConfig points at the statement backend.
type APIConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DataConfig holds local paths.
type DataConfig struct {
	// Dir holds the sealed credential slot and its key.
	Dir string `yaml:"dir"`
	// DownloadDir receives exports when no bucket is configured.
	DownloadDir string `yaml:"download_dir"`
}

// UploadConfig configures the staging area.
type UploadConfig struct {
	// Accept lists the extensions the picker and staging area admit.
	Accept []string `yaml:"accept"`
}

// SessionConfig configures token decoding.
type SessionConfig struct {
	// VerificationKey enables HS256 signature checks when set.
	VerificationKey string `yaml:"verification_key"`
}

// ConsoleConfig configures the local HTTP console.
type ConsoleConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ExportConfig selects the S3 archive sink. Exports go to the download
// directory when Bucket is empty.
type ExportConfig struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig sets the log level (debug, info, warn, error).
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	dataDir := "./data"
	downloads := "./downloads"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".cardledger")
		downloads = filepath.Join(home, "Downloads")
	}
	return &Config{
		API: APIConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: 30 * time.Second,
		},
		Data: DataConfig{
			Dir:         dataDir,
			DownloadDir: downloads,
		},
		Upload: UploadConfig{
			Accept: []string{".pdf"},
		},
		Console: ConsoleConfig{
			Addr: "127.0.0.1:8780",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.url must be an http(s) URL, got %q", c.API.URL)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if len(c.Upload.Accept) == 0 {
		return fmt.Errorf("upload.accept must list at least one extension")
	}
	for _, ext := range c.Upload.Accept {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("upload.accept: %q is not an extension", ext)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SlogLevel is the configured log level. Validate reports bad values.
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.Log.Level)
	return level
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// LoadFromFile reads a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
