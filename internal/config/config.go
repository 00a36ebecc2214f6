package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Partner   PartnerConfig   `mapstructure:"partner"   validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database related settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains authentication settings for the control API.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// PartnerConfig contains settings for the partner exchange API.
type PartnerConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// OperatorKey is the partner API key for the operator's own profile
	// pool. When set, the scheduler runs an unconditional, non-metered
	// pass for it before draining client jobs.
	OperatorKey string `mapstructure:"operator_key"`

	// NotifyURL is an optional operator webhook that receives every
	// lifecycle event in addition to per-client targets.
	NotifyURL string `mapstructure:"notify_url" validate:"omitempty,url"`
}

// SchedulerConfig contains pacing and keep-alive settings. Zero values
// fall back to the defaults applied by the scheduler package.
type SchedulerConfig struct {
	// KeepAliveInterval is the pause between scheduler passes. Values
	// below five minutes are raised to the floor at runtime.
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`

	// CommentDelay is the pause between successful comment posts.
	CommentDelay time.Duration `mapstructure:"comment_delay"`

	// LoginRetries bounds login attempts per account per run.
	LoginRetries int `mapstructure:"login_retries" validate:"omitempty,gte=1,lte=10"`

	// ThrottleWait is how long to back off after a throttled login.
	ThrottleWait time.Duration `mapstructure:"throttle_wait"`
}
