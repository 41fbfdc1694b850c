package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL   string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`
	JWTSigningKey string `mapstructure:"JWT_SIGNING_KEY"`

	// Compliance pipeline.
	IdleTimeoutSeconds int      `mapstructure:"IDLE_TIMEOUT_SECONDS"`
	ConsentVersion     string   `mapstructure:"CONSENT_VERSION"`
	ProtectedPrefixes  []string `mapstructure:"PROTECTED_PREFIXES"`
	RedactAllowRoles   []string `mapstructure:"REDACT_ALLOW_ROLES"`
	AuditFailurePolicy string   `mapstructure:"AUDIT_FAILURE_POLICY"`
	AuditQueueSize     int      `mapstructure:"AUDIT_QUEUE_SIZE"`

	// Realtime delivery.
	PushSendTimeoutMS    int `mapstructure:"PUSH_SEND_TIMEOUT_MS"`
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS"`

	// HTTP server hygiene.
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeoutSeconds int      `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BodyLimit             string   `mapstructure:"BODY_LIMIT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("IDLE_TIMEOUT_SECONDS", 900)
	v.SetDefault("CONSENT_VERSION", "2024-01")
	v.SetDefault("PROTECTED_PREFIXES", "/api/v1/records,/api/v1/lab-results,/api/v1/prescriptions,/api/v1/imaging,/api/v1/telemedicine,/api/v1/notifications")
	v.SetDefault("REDACT_ALLOW_ROLES", "admin,doctor")
	v.SetDefault("AUDIT_FAILURE_POLICY", "swallow")
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("PUSH_SEND_TIMEOUT_MS", 2000)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 300)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("BODY_LIMIT", "1M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
		"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "JWT_SIGNING_KEY",
		"IDLE_TIMEOUT_SECONDS", "CONSENT_VERSION", "PROTECTED_PREFIXES",
		"REDACT_ALLOW_ROLES", "AUDIT_FAILURE_POLICY", "AUDIT_QUEUE_SIZE",
		"PUSH_SEND_TIMEOUT_MS", "SWEEP_INTERVAL_SECONDS",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"REQUEST_TIMEOUT_SECONDS", "BODY_LIMIT",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ProtectedPrefixes == nil {
		if s := v.GetString("PROTECTED_PREFIXES"); s != "" {
			cfg.ProtectedPrefixes = strings.Split(s, ",")
		}
	}
	if cfg.RedactAllowRoles == nil {
		if s := v.GetString("REDACT_ALLOW_ROLES"); s != "" {
			cfg.RedactAllowRoles = strings.Split(s, ",")
		}
	}
	if cfg.CORSOrigins == nil {
		if s := v.GetString("CORS_ORIGINS"); s != "" {
			cfg.CORSOrigins = strings.Split(s, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// IdleTimeout returns the configured idle-session threshold as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// PushSendTimeout returns the bounded per-connection send timeout.
func (c *Config) PushSendTimeout() time.Duration {
	return time.Duration(c.PushSendTimeoutMS) * time.Millisecond
}

// SweepInterval returns the expired-notification sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request handler deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Production requires
// real JWT authentication; the idle threshold and audit policy must be sane
// regardless of environment.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.JWTSigningKey == "" {
		return fmt.Errorf("AUTH_ISSUER or JWT_SIGNING_KEY must be set in production; " +
			"refusing to start without authentication configuration")
	}
	if c.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT_SECONDS must be positive, got %d", c.IdleTimeoutSeconds)
	}
	switch c.AuditFailurePolicy {
	case "swallow", "fail":
	default:
		return fmt.Errorf("AUDIT_FAILURE_POLICY must be \"swallow\" or \"fail\", got %q", c.AuditFailurePolicy)
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive, got %d", c.AuditQueueSize)
	}
	if c.PushSendTimeoutMS <= 0 {
		return fmt.Errorf("PUSH_SEND_TIMEOUT_MS must be positive, got %d", c.PushSendTimeoutMS)
	}
	return nil
}
