// Package config loads the service configuration from a YAML file, with
// environment overrides for the secrets that should not live on disk.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"shiftboard/internal/utils"
)

//go:embed config.sample.yaml
var sampleConfig []byte

const (
	configDirName  = "shiftboard"
	configFileName = "config.yaml"
	configDirPerm  = 0755
	configFilePerm = 0644
)

// Config is the full service configuration.
type Config struct {
	// ListenAddr is the HTTP API bind address.
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	// DatabaseURL is the hosted Postgres connection string. The
	// DATABASE_URL environment variable takes precedence.
	DatabaseURL string `yaml:"database_url"`
	// FallbackPath overrides the fallback store location; empty selects
	// the XDG default.
	FallbackPath string `yaml:"fallback_path"`

	// RequestTimeoutSeconds bounds every remote operation.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" validate:"min=1,max=120"`
	// ReloadDebounceMillis collapses bursts of change notifications into
	// one reload.
	ReloadDebounceMillis int `yaml:"reload_debounce_millis" validate:"min=0,max=10000"`
	// OutboxReplaySeconds is the interval between attempts to replay
	// queued offline writes. Zero disables the timer (replay still runs
	// on listener reconnect).
	OutboxReplaySeconds int `yaml:"outbox_replay_seconds" validate:"min=0,max=3600"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// CORSOrigins lists the origins the browser client may call from.
	// Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the configuration used when no file exists yet.
func Default() Config {
	return Config{
		ListenAddr:            ":8080",
		RequestTimeoutSeconds: 5,
		ReloadDebounceMillis:  250,
		OutboxReplaySeconds:   60,
		LogLevel:              "info",
	}
}

// RequestTimeout returns the remote operation bound as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// ReloadDebounce returns the change-notification debounce window.
func (c Config) ReloadDebounce() time.Duration {
	return time.Duration(c.ReloadDebounceMillis) * time.Millisecond
}

// OutboxReplayInterval returns the replay timer interval, zero when
// disabled.
func (c Config) OutboxReplayInterval() time.Duration {
	return time.Duration(c.OutboxReplaySeconds) * time.Second
}

// Validate checks the configuration against its constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return utils.ErrConfigInvalid(fe.Field(), fmt.Sprintf("failed %q constraint", fe.Tag()))
		}
		return err
	}
	return nil
}

// DefaultPath returns the config file location.
// Priority: $XDG_CONFIG_HOME/shiftboard/config.yaml, then
// ~/.config/shiftboard/config.yaml.
func DefaultPath() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, configDirName, configFileName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", configDirName, configFileName), nil
}

// Load reads the configuration from path (or the default location when
// empty), writing the embedded sample on first run. DATABASE_URL from the
// environment overrides the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeSample(path); writeErr != nil {
			// A read-only config dir is not fatal; run on defaults.
			return applyEnv(cfg), cfg.Validate()
		}
		raw = sampleConfig
		err = nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg = applyEnv(cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg Config) Config {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg
}

func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return err
	}
	return os.WriteFile(path, sampleConfig, configFilePerm)
}
