// Package config loads patchwork settings through Viper.
//
// Precedence, highest first: command-line flags that were set, PATCHWORK_*
// environment variables, the config file, then the defaults below.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/patchwork/internal/resolver"
	"github.com/roach88/patchwork/internal/rules"
)

const (
	// AppName is the application name and config file base name.
	AppName = "patchwork"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PATCHWORK"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DB is the journal path. Empty disables the journal.
	DB string `mapstructure:"db"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
	// PatternTimeout bounds each pattern match. Zero disables the limit.
	PatternTimeout time.Duration `mapstructure:"pattern_timeout"`
	// PendingWarnAfter is how many instantiations a lazy request may wait
	// through before PENDING_TOO_LONG. Zero disables the warning.
	PendingWarnAfter int `mapstructure:"pending_warn_after"`
	// RulesDir is the default rule pack directory.
	RulesDir string `mapstructure:"rules_dir"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		PatternTimeout:   rules.DefaultTimeout,
		PendingWarnAfter: resolver.DefaultWarnAfter,
		RulesDir:         "rules",
	}
}

// LoadOptions controls where configuration comes from.
type LoadOptions struct {
	// ConfigFile is an explicit config file. It must exist when set.
	ConfigFile string
	// SearchPaths are searched for patchwork.{yaml,yml,json,toml} when
	// ConfigFile is empty. Missing files there are not an error.
	SearchPaths []string
	// Flags are bound by key, with underscores written as dashes
	// (pattern_timeout binds --pattern-timeout). Only flags that were set
	// override other sources.
	Flags *pflag.FlagSet
}

var keys = []string{"db", "log_level", "pattern_timeout", "pending_warn_after", "rules_dir"}

// Load resolves the configuration and returns it with the config file used,
// which is empty when defaults and environment were enough.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("db", defaults.DB)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("pattern_timeout", defaults.PatternTimeout)
	v.SetDefault("pending_warn_after", defaults.PendingWarnAfter)
	v.SetDefault("rules_dir", defaults.RulesDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for _, key := range keys {
			if f := opts.Flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(AppName)
		for _, p := range opts.SearchPaths {
			v.AddConfigPath(p)
		}
		if len(opts.SearchPaths) > 0 {
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, "", fmt.Errorf("read config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, v.ConfigFileUsed(), nil
}

// Validate checks value ranges that Viper cannot express.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	if c.PatternTimeout < 0 {
		return fmt.Errorf("pattern_timeout %s: must not be negative", c.PatternTimeout)
	}
	if c.PendingWarnAfter < 0 {
		return fmt.Errorf("pending_warn_after %d: must not be negative", c.PendingWarnAfter)
	}
	return nil
}
