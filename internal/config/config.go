// Package config loads cmd/cachetowerd's runtime configuration. The core
// library never reads this package or any global config; every component
// takes its dependencies as explicit constructor arguments, so this shape
// is only for the example daemon that wires a stack end-to-end.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds cmd/cachetowerd's startup configuration, the same
// viper+mapstructure shape as the teacher's internal/config.Config.
type Config struct {
	RedisAddress     string `mapstructure:"redis_address"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	ChannelPrefix    string `mapstructure:"channel_prefix"`
	CleanupFrequency string `mapstructure:"cleanup_frequency"`
	FlagTTL          string `mapstructure:"flag_ttl"`
	LogLevel         string `mapstructure:"log_level"`
	Metrics          struct {
		Address string `mapstructure:"address"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"metrics"`
}

const (
	defaultChannelPrefix    = "CacheTower"
	defaultCleanupFrequency = "5m"
	defaultFlagTTL          = "10s"
)

var (
	globalConfig *Config
	logger       zerolog.Logger
)

func init() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: false}).With().Timestamp().Logger()
}

// LoadConfig reads config.yaml from "." or "./config" (if present),
// overlays APP_-prefixed environment variables, and fills in this module's
// own defaults (the teacher's LoadConfig instead defaults a user agent).
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = defaultChannelPrefix
	}
	if cfg.CleanupFrequency == "" {
		cfg.CleanupFrequency = defaultCleanupFrequency
	}
	if cfg.FlagTTL == "" {
		cfg.FlagTTL = defaultFlagTTL
	}

	level := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	logger = logger.Level(level)

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if
// LoadConfig has not been called yet.
func GetConfig() *Config { return globalConfig }

// GetLogger returns the package-level logger, leveled by the most recently
// loaded configuration's LogLevel.
func GetLogger() zerolog.Logger { return logger }

// CleanupInterval parses CleanupFrequency, falling back to the default on a
// malformed value.
func (c *Config) CleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.CleanupFrequency)
	if err != nil {
		d, _ = time.ParseDuration(defaultCleanupFrequency)
	}
	return d
}

// FlagTimeout parses FlagTTL, falling back to the default on a malformed
// value.
func (c *Config) FlagTimeout() time.Duration {
	d, err := time.ParseDuration(c.FlagTTL)
	if err != nil {
		d, _ = time.ParseDuration(defaultFlagTTL)
	}
	return d
}
