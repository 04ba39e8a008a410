// Package config provides configuration loading for keyturn.
//
// Configuration is loaded using Viper, supporting YAML config files and
// environment variable overrides. Defaults work out of the box; a config
// file only needs the keys it changes.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (KEYTURN_ prefix, e.g. KEYTURN_DATABASE)
//  2. Config file specified by KEYTURN_CONFIG_PATH
//  3. ~/.config/keyturn/keyturn.yaml (os.UserConfigDir)
//  4. ./keyturn.yaml
//  5. [Default] defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the keyturn CLI.
type Config struct {
	// Database is the SQLite progress store path.
	Database string `mapstructure:"database"`

	// CatalogDir optionally points at a directory of CUE catalog files.
	// Empty means the embedded closing catalog.
	CatalogDir string `mapstructure:"catalog_dir"`

	// Notifications toggles event logging on step/task transitions.
	Notifications bool `mapstructure:"notifications"`

	// LogLevel is the slog level: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Database:      "keyturn.db",
		Notifications: true,
		LogLevel:      "info",
	}
}

// Load reads configuration from the standard locations. A missing config
// file is not an error; defaults and environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("database", def.Database)
	v.SetDefault("catalog_dir", def.CatalogDir)
	v.SetDefault("notifications", def.Notifications)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("KEYTURN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("KEYTURN_CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("keyturn")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "keyturn"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
