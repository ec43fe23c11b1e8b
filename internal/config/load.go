package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables (prefix THREADSIFT_)
// and an optional config file, applies defaults, and validates the result.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "threadsift.db")
	v.SetDefault("storage.snapshot_key", "tasks:snapshot")
	v.SetDefault("tasks.retain_finished", 50)
	v.SetDefault("tasks.debounce_ms", 1000)
	v.SetDefault("tasks.persist_max_attempts", 3)
	v.SetDefault("tasks.persist_initial_delay_ms", 200)
	v.SetDefault("tasks.persist_max_delay_ms", 2000)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.initial_delay_ms", 2000)
	v.SetDefault("llm.max_delay_ms", 30000)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine; env and defaults cover everything.
	}

	v.SetEnvPrefix("THREADSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
