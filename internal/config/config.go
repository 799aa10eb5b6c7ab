// Package config loads the runtime settings and the accounts file. Settings
// come from pointsweep.yaml with POINTSWEEP_-prefixed environment overrides;
// accounts live in their own YAML file since they carry credentials.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	AccountsFile    string `mapstructure:"accountsFile"`
	Workers         int    `mapstructure:"workers"`
	RunOnZeroPoints bool   `mapstructure:"runOnZeroPoints"`

	State   StateConfig   `mapstructure:"state"`
	Surface SurfaceConfig `mapstructure:"surface"`
	Login   LoginTimings  `mapstructure:"login"`
	Ntfy    NtfyConfig    `mapstructure:"ntfy"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Log     LogConfig     `mapstructure:"log"`
}

// LoginTimings exposes the login flow's polling intervals and deadlines.
// Values are Go duration strings in the config file.
type LoginTimings struct {
	NavigationTimeout     time.Duration `mapstructure:"navigationTimeout"`
	TwoFactorPollInterval time.Duration `mapstructure:"twoFactorPollInterval"`
	TwoFactorTimeout      time.Duration `mapstructure:"twoFactorTimeout"`
	PostLoginTimeout      time.Duration `mapstructure:"postLoginTimeout"`
}

// StateConfig selects and locates the state backend.
type StateConfig struct {
	// Backend is "sqlite" or "json".
	Backend string `mapstructure:"backend"`
	// Path is the database file for sqlite, the state directory for json.
	Path string `mapstructure:"path"`
}

// SurfaceConfig points at the browser automation sidecar.
type SurfaceConfig struct {
	BaseURL string `mapstructure:"baseUrl"`
}

// NtfyConfig configures the push notification topic. An empty topic disables
// the sink.
type NtfyConfig struct {
	ServerURL string `mapstructure:"serverUrl"`
	Topic     string `mapstructure:"topic"`
	Token     string `mapstructure:"token"`
}

// WebhookConfig configures the chat webhook. An empty URL disables the sink.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// Load reads the configuration. With an explicit path the file must exist;
// otherwise pointsweep.yaml is searched in the working directory and
// ~/.config/pointsweep, and a missing file just yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pointsweep")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/pointsweep")
	}

	v.SetEnvPrefix("POINTSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("accountsFile", "accounts.yaml")
	v.SetDefault("workers", 1)
	v.SetDefault("runOnZeroPoints", false)
	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.path", "pointsweep.db")
	v.SetDefault("surface.baseUrl", "http://127.0.0.1:9377")
	v.SetDefault("login.navigationTimeout", "30s")
	v.SetDefault("login.twoFactorPollInterval", "2s")
	v.SetDefault("login.twoFactorTimeout", "60s")
	v.SetDefault("login.postLoginTimeout", "60s")
	v.SetDefault("ntfy.serverUrl", "https://ntfy.sh")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the composition root cannot act on.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch c.State.Backend {
	case "sqlite", "json":
	default:
		return fmt.Errorf("unknown state backend %q (want sqlite or json)", c.State.Backend)
	}
	if c.State.Path == "" {
		return errors.New("state.path must be set")
	}
	if c.AccountsFile == "" {
		return errors.New("accountsFile must be set")
	}
	if c.Login.TwoFactorPollInterval <= 0 || c.Login.TwoFactorTimeout <= 0 ||
		c.Login.PostLoginTimeout <= 0 || c.Login.NavigationTimeout <= 0 {
		return errors.New("login timings must be positive durations")
	}
	return nil
}
