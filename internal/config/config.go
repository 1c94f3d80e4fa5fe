// Package config loads server settings from an optional YAML file and
// THESISLOCK_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "THESISLOCK"

type Config struct {
	HTTPAddr   string      `mapstructure:"http_addr"   validate:"required"`
	HealthAddr string      `mapstructure:"health_addr"` // empty disables the gRPC health server
	Env        string      `mapstructure:"env"         validate:"required,oneof=dev prod"`
	Timezone   string      `mapstructure:"timezone"    validate:"required"`
	LogLevel   string      `mapstructure:"log_level"   validate:"required,oneof=debug info warn error"`
	SeedDev    bool        `mapstructure:"seed_dev"`
	Store      StoreConfig `mapstructure:"store"`

	// Location is Timezone resolved by Load.
	Location *time.Location `mapstructure:"-"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver"       validate:"required,oneof=memory sqlite postgres"`
	SQLitePath  string `mapstructure:"sqlite_path"  validate:"required_if=Driver sqlite"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("http_addr", ":8080")
	vip.SetDefault("health_addr", ":9090")
	vip.SetDefault("env", "dev")
	vip.SetDefault("timezone", "UTC")
	vip.SetDefault("log_level", "info")
	vip.SetDefault("seed_dev", false)
	vip.SetDefault("store.driver", "sqlite")
	vip.SetDefault("store.sqlite_path", "./data/thesislock.db")
	vip.SetDefault("store.postgres_dsn", "")
}

// Load reads path when non-empty, otherwise looks for thesislock.yaml in the
// working directory and ./configs. A missing default file is not an error.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("thesislock")
		vip.AddConfigPath(".")
		vip.AddConfigPath("./configs")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	return &cfg, nil
}
