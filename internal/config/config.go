package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. GOEXTRACT_LOG_LEVEL.
const EnvPrefix = "GOEXTRACT"

// Config holds the complete application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Engine EngineConfig `mapstructure:"engine"`
	Watch  WatchConfig  `mapstructure:"watch"`
	Output OutputConfig `mapstructure:"output"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig holds the refactoring engine options.
type EngineConfig struct {
	FallbackName       string `mapstructure:"fallback_name"`
	FieldAccessibility string `mapstructure:"field_accessibility"`
	Disambiguate       bool   `mapstructure:"disambiguate"`
	VerifyTypes        bool   `mapstructure:"verify_types"`
	Concurrency        int    `mapstructure:"concurrency"` // parsing and call search
}

// WatchConfig holds the snapshot watcher configuration of long-running hosts.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// OutputConfig controls how results are printed.
type OutputConfig struct {
	Format  string `mapstructure:"format"` // text, json or yaml
	Color   bool   `mapstructure:"color"`
	Context int    `mapstructure:"context"` // diff context lines
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("engine.fallback_name", refactor.DefaultFallbackName)
	v.SetDefault("engine.field_accessibility", "private")
	v.SetDefault("engine.disambiguate", true)
	v.SetDefault("engine.verify_types", true)
	v.SetDefault("engine.concurrency", 0)

	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", "200ms")

	v.SetDefault("output.format", "text")
	v.SetDefault("output.color", true)
	v.SetDefault("output.context", 3)
}

// Load reads the configuration into v: defaults, then the config file
// (file, or goextract.yaml in the working directory and
// $HOME/.config/goextract), then GOEXTRACT_* environment variables. Flags
// bound to v before Load take precedence over all of them. A missing
// config file is not an error unless file names it explicitly.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("goextract")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/goextract")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v)
}

// New decodes and validates the configuration held by v.
func New(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := types.ParseAccessibility(c.Engine.FieldAccessibility); err != nil {
		return fmt.Errorf("engine.field_accessibility: %w", err)
	}
	if c.Engine.Concurrency < 0 {
		return errors.New("engine.concurrency must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return errors.New("watch.debounce must not be negative")
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output.format must be text, json or yaml, got %q", c.Output.Format)
	}
	if c.Output.Context < 0 {
		return errors.New("output.context must not be negative")
	}
	return nil
}

// RefactorConfig maps the engine section onto the engine's options.
func (c *Config) RefactorConfig() *refactor.Config {
	access, _ := types.ParseAccessibility(c.Engine.FieldAccessibility)
	cfg := refactor.DefaultConfig()
	if c.Engine.FallbackName != "" {
		cfg.FallbackName = c.Engine.FallbackName
	}
	cfg.FieldAccessibility = access
	cfg.Disambiguate = c.Engine.Disambiguate
	cfg.VerifyTypes = c.Engine.VerifyTypes
	return cfg
}

// Logger builds the structured logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.level()
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
