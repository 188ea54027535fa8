// Package config provides configuration management for replwatch.
//
// Configuration is loaded from three sources with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (REPLWATCH_ prefix)
//  3. Config file (.replwatch.yaml)
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/replwatch/internal/watch"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Supported notifier backends.
const (
	BackendPoll     = watch.BackendPoll
	BackendFSNotify = watch.BackendFSNotify
)

// Defaults for the bridge settings.
const (
	DefaultIntervalMS = 50
	DefaultPace       = 100 * time.Millisecond
	DefaultCommand    = "ghci"
)

// ErrWatchPathRequired is returned when RequireWatchPath is set without a
// WatchPath.
var ErrWatchPathRequired = errors.New("a watch path is required (--watch-path)")

// Config represents the global configuration for replwatch.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel" yaml:"log-level"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat" yaml:"log-format"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet" yaml:"quiet"`

	// WatchPath is watched and reloaded at startup when set.
	WatchPath string `mapstructure:"watch-path" json:"watchPath" yaml:"watch-path"`

	// RequireWatchPath makes WatchPath mandatory.
	RequireWatchPath bool `mapstructure:"require-watch-path" json:"requireWatchPath" yaml:"require-watch-path"`

	// Interval is the notifier poll interval in milliseconds.
	Interval int `mapstructure:"interval" json:"interval" yaml:"interval"`

	// Pace is the delay before each synthesized write.
	Pace time.Duration `mapstructure:"pace" json:"pace" yaml:"pace"`

	// Backend selects the notifier implementation.
	// Valid values: poll, fsnotify.
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend"`

	// Command is the interpreter to run.
	Command string `mapstructure:"command" json:"command" yaml:"command"`

	// Args are passed to Command.
	Args []string `mapstructure:"args" json:"args" yaml:"args,omitempty"`

	// ConfigFile is the resolved path to the config file used.
	// Set after Load() — not read from config itself.
	ConfigFile string `mapstructure:"-" json:"-" yaml:"-"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:  LogLevelInfo,
		LogFormat: LogFormatText,
		Interval:  DefaultIntervalMS,
		Pace:      DefaultPace,
		Backend:   BackendPoll,
		Command:   DefaultCommand,
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		// valid
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
		// valid
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	switch c.Backend {
	case BackendPoll, BackendFSNotify:
		// valid
	default:
		return fmt.Errorf("invalid backend %q: must be one of poll, fsnotify", c.Backend)
	}

	if c.Interval <= 0 {
		return fmt.Errorf("invalid interval %d: must be a positive number of milliseconds", c.Interval)
	}

	if c.Pace < 0 {
		return fmt.Errorf("invalid pace %s: must not be negative", c.Pace)
	}

	if strings.TrimSpace(c.Command) == "" {
		return errors.New("invalid command: must not be empty")
	}

	if c.RequireWatchPath && strings.TrimSpace(c.WatchPath) == "" {
		return ErrWatchPathRequired
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// PollInterval returns Interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Millisecond
}

// Load initialises configuration from flags, environment variables, and an
// optional config file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	configureEnv(v)

	if err := configureFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("quiet", d.Quiet)
	v.SetDefault("watch-path", "")
	v.SetDefault("require-watch-path", false)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("pace", d.Pace)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("command", d.Command)
	v.SetDefault("args", []string{})
}

// configureEnv sets up environment variable support.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("REPLWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// configureFile sets up the config file source.
func configureFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".replwatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "replwatch"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags binds cmd's own flags and the persistent flags of every
// ancestor.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
