// Package config loads osm settings from an optional file and OSM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/huckl3b3rry/osm/internal/db"
	"github.com/huckl3b3rry/osm/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. OSM_DATA_DIR.
const EnvPrefix = "OSM"

// Config is the complete osm configuration.
type Config struct {
	AppName string    `mapstructure:"app_name"`
	DataDir string    `mapstructure:"data_dir"`
	Log     LogConfig `mapstructure:"log"`
}

// LogConfig mirrors logging.Config in file form.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Pretty     bool   `mapstructure:"pretty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		AppName: db.DefaultAppName,
		Log: LogConfig{
			Level:      "info",
			Pretty:     true,
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path (or osm.yaml from the working directory and the user
// config dir when path is empty), then applies OSM_* overrides.
func Load(path string) (*Config, error) {
	v := New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Read loads the config file into v. A missing default file is not an
// error; a missing explicit file is.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("osm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/osm")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// New returns a viper instance carrying defaults and env bindings.
func New() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("app_name", d.AppName)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if strings.ContainsAny(c.AppName, `/\`) {
		return fmt.Errorf("app_name %q must not contain path separators", c.AppName)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation limits must not be negative")
	}
	return nil
}

// Locator returns the project path resolver for this configuration.
func (c *Config) Locator() *db.Locator {
	return db.NewLocator(c.AppName, c.DataDir)
}

// Logging converts the file form into a logging.Config writing to the console.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		Console:    true,
		Pretty:     c.Log.Pretty,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
