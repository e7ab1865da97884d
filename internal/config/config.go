package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port                      string        `mapstructure:"PORT"`
	Env                       string        `mapstructure:"ENV"`
	LogLevel                  string        `mapstructure:"LOG_LEVEL"`
	AuthMode                  string        `mapstructure:"AUTH_MODE"`
	DatabaseURL               string        `mapstructure:"DATABASE_URL"`
	DBSchema                  string        `mapstructure:"DB_SCHEMA"`
	DBMaxConns                int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL                  string        `mapstructure:"REDIS_URL"`
	AuthIssuer                string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL               string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience              string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey            string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins               []string      `mapstructure:"CORS_ORIGINS"`
	CORSAllowedMethods        []string      `mapstructure:"CORS_ALLOWED_METHODS"`
	CORSAllowedHeaders        []string      `mapstructure:"CORS_ALLOWED_HEADERS"`
	TopProvidersRatePerMinute int           `mapstructure:"TOP_PROVIDERS_RATE_PER_MINUTE"`
	IngestMaxAttempts         int           `mapstructure:"INGEST_MAX_ATTEMPTS"`
	RequestTimeout            time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit                 string        `mapstructure:"BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "AUTH_MODE",
	"DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "CORS_ALLOWED_METHODS", "CORS_ALLOWED_HEADERS",
	"TOP_PROVIDERS_RATE_PER_MINUTE", "INGEST_MAX_ATTEMPTS",
	"REQUEST_TIMEOUT", "BODY_LIMIT",
}

// Load reads configuration from the environment and an optional .env file in
// the working directory. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("DB_SCHEMA", "claims")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("CORS_ALLOWED_METHODS", "*")
	v.SetDefault("CORS_ALLOWED_HEADERS", "*")
	v.SetDefault("TOP_PROVIDERS_RATE_PER_MINUTE", 10)
	v.SetDefault("INGEST_MAX_ATTEMPTS", 3)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.CORSAllowedMethods = splitList(cfg.CORSAllowedMethods)
	cfg.CORSAllowedHeaders = splitList(cfg.CORSAllowedHeaders)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ResolvedAuthMode() == AuthModeDevelopment {
		log.Warn().Msg("development auth is active: any bearer token is accepted; set ENV=production and AUTH_MODE=jwt for real deployments")
	}

	return cfg, nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise development
// environments get development auth and everything else gets jwt.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// ZerologLevel parses LOG_LEVEL, falling back to info.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case AuthModeJWT:
		// Without a signing key, keys come from AUTH_JWKS_URL or issuer discovery.
		if c.AuthSigningKey == "" && c.AuthIssuer == "" {
			return fmt.Errorf("AUTH_MODE \"jwt\" requires AUTH_SIGNING_KEY or AUTH_ISSUER")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}

	if c.IngestMaxAttempts < 1 || c.IngestMaxAttempts > 10 {
		return fmt.Errorf("INGEST_MAX_ATTEMPTS must be between 1 and 10, got %d", c.IngestMaxAttempts)
	}
	if c.TopProvidersRatePerMinute <= 0 {
		return fmt.Errorf("TOP_PROVIDERS_RATE_PER_MINUTE must be positive, got %d", c.TopProvidersRatePerMinute)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid pool sizing: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	return nil
}
