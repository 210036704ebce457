package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret"                     validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes"         validate:"gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}

// CacheConfig holds the per-tier cache policies. Seconds rather than
// durations so plain numeric environment variables work.
type CacheConfig struct {
	Main      TierSettings `mapstructure:"main"`
	Session   TierSettings `mapstructure:"session"`
	AIResults TierSettings `mapstructure:"ai_results"`
	RateLimit TierSettings `mapstructure:"rate_limit"`
	// PruneIntervalSeconds controls the background expiry sweep cadence.
	PruneIntervalSeconds int `mapstructure:"prune_interval_seconds"`
}

// TierSettings configures one cache tier.
type TierSettings struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
	MaxEntries int `mapstructure:"max_entries"`
}

// RateLimitConfig holds the per-route-class admission budgets.
type RateLimitConfig struct {
	General  ClassSettings `mapstructure:"general"`
	Auth     ClassSettings `mapstructure:"auth"`
	Mutation ClassSettings `mapstructure:"mutation"`
	AI       ClassSettings `mapstructure:"ai"`
	Upload   ClassSettings `mapstructure:"upload"`
	// SweepIntervalSeconds controls how often idle keys are reclaimed.
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
}

// ClassSettings configures one route class budget. Strategy is either
// "fixed_window" or "points".
type ClassSettings struct {
	Strategy      string `mapstructure:"strategy" validate:"omitempty,oneof=fixed_window points"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	Max           int    `mapstructure:"max"`
}

// BreakerConfig holds the per-dependency circuit breaker settings.
type BreakerConfig struct {
	AI       BreakerSettings `mapstructure:"ai"`
	Database BreakerSettings `mapstructure:"database"`
	HTTP     BreakerSettings `mapstructure:"http"`
}

// BreakerSettings configures one guarded dependency.
type BreakerSettings struct {
	FailureThreshold    int `mapstructure:"failure_threshold"`
	ResetTimeoutSeconds int `mapstructure:"reset_timeout_seconds"`
	CallTimeoutSeconds  int `mapstructure:"call_timeout_seconds"`
}

// WebhookConfig configures outbound task event delivery. An empty URL
// disables delivery.
type WebhookConfig struct {
	TaskCompletedURL string `mapstructure:"task_completed_url" validate:"omitempty,url"`
}
