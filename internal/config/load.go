package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values; every setting has a documented default so a
// missing value never fails startup, only failed validation of what was
// provided does.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MATRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the hardcoded fallback for every recognized
// setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Registered empty so viper binds the environment variables during
	// Unmarshal; validation rejects them when left unset.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("llm.gemini_api_key", "")

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 10080) // 7 days

	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	// Cache tiers: TTL seconds / max entries.
	v.SetDefault("cache.main.ttl_seconds", 300)
	v.SetDefault("cache.main.max_entries", 1000)
	v.SetDefault("cache.session.ttl_seconds", 1800)
	v.SetDefault("cache.session.max_entries", 5000)
	v.SetDefault("cache.ai_results.ttl_seconds", 3600)
	v.SetDefault("cache.ai_results.max_entries", 500)
	v.SetDefault("cache.rate_limit.ttl_seconds", 120)
	v.SetDefault("cache.rate_limit.max_entries", 10000)
	v.SetDefault("cache.prune_interval_seconds", 180)

	// Rate limit classes: window seconds / max requests or points.
	v.SetDefault("rate_limit.general.strategy", "fixed_window")
	v.SetDefault("rate_limit.general.window_seconds", 60)
	v.SetDefault("rate_limit.general.max", 120)
	v.SetDefault("rate_limit.auth.strategy", "fixed_window")
	v.SetDefault("rate_limit.auth.window_seconds", 300)
	v.SetDefault("rate_limit.auth.max", 10)
	v.SetDefault("rate_limit.mutation.strategy", "points")
	v.SetDefault("rate_limit.mutation.window_seconds", 60)
	v.SetDefault("rate_limit.mutation.max", 60)
	v.SetDefault("rate_limit.ai.strategy", "points")
	v.SetDefault("rate_limit.ai.window_seconds", 60)
	v.SetDefault("rate_limit.ai.max", 30)
	v.SetDefault("rate_limit.upload.strategy", "points")
	v.SetDefault("rate_limit.upload.window_seconds", 300)
	v.SetDefault("rate_limit.upload.max", 45)
	v.SetDefault("rate_limit.sweep_interval_seconds", 300)

	// Circuit breakers: independent settings per dependency.
	v.SetDefault("breaker.ai.failure_threshold", 3)
	v.SetDefault("breaker.ai.reset_timeout_seconds", 30)
	v.SetDefault("breaker.ai.call_timeout_seconds", 30)
	v.SetDefault("breaker.database.failure_threshold", 5)
	v.SetDefault("breaker.database.reset_timeout_seconds", 15)
	v.SetDefault("breaker.database.call_timeout_seconds", 5)
	v.SetDefault("breaker.http.failure_threshold", 5)
	v.SetDefault("breaker.http.reset_timeout_seconds", 30)
	v.SetDefault("breaker.http.call_timeout_seconds", 10)

	// Outbound task event delivery; empty disables it.
	v.SetDefault("webhook.task_completed_url", "")
}
