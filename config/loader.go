package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CARDLEDGER_"
	// UserConfigFile is read from the user config dir when no path is given.
	UserConfigFile = "cardledger/config.yaml"
)

// Loader applies configuration layers in order: defaults, YAML file,
// .env file, environment.
type Loader struct {
	logger  *slog.Logger
	envFile string
	lookup  func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvFile sets the dotenv file to read. Missing files are ignored.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) { l.envFile = path }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookup = fn }
}

// NewLoader creates a Loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger, envFile: ".env", lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load is NewLoader(nil).Load(path).
func Load(path string) (*Config, error) {
	return NewLoader(nil).Load(path)
}

// Load builds the configuration. An explicit path must exist; without one
// the user config file is used if present.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
		l.logger.Debug("loaded config file", slog.String("path", path))
	} else if userPath := userConfigPath(); userPath != "" {
		fileCfg, err := LoadFromFile(userPath)
		switch {
		case err == nil:
			cfg = fileCfg
			l.logger.Debug("loaded user config", slog.String("path", userPath))
		case !errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("failed to load user config", slog.String("path", userPath), slog.String("error", err.Error()))
		}
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.envFile, err)
		}
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := l.lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := l.lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	str("API_URL", &cfg.API.URL)
	if v, ok := l.lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		cfg.API.Timeout = d
	}
	str("DATA_DIR", &cfg.Data.Dir)
	str("DOWNLOAD_DIR", &cfg.Data.DownloadDir)
	list("ACCEPT", &cfg.Upload.Accept)
	str("TOKEN_KEY", &cfg.Session.VerificationKey)
	str("CONSOLE_ADDR", &cfg.Console.Addr)
	list("CORS_ORIGINS", &cfg.Console.CORSOrigins)
	str("EXPORT_BUCKET", &cfg.Export.Bucket)
	str("EXPORT_PREFIX", &cfg.Export.Prefix)
	str("EXPORT_REGION", &cfg.Export.Region)
	str("EXPORT_ENDPOINT", &cfg.Export.Endpoint)
	str("LOG_LEVEL", &cfg.Log.Level)
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func userConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, UserConfigFile)
}
