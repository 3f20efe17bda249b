package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                    int    `env:"PORT" envDefault:"8080"`
	DatabaseURL             string `env:"DATABASE_URL,required"`
	RedisURL                string `env:"REDIS_URL,required"`
	SiteURL                 string `env:"SITE_URL" envDefault:"http://localhost:8080"`
	AdminPasswordHash       string `env:"ADMIN_PASSWORD_HASH"`
	AdminSessionSecret      string `env:"ADMIN_SESSION_SECRET"`
	AccessSessionSecret     string `env:"ACCESS_SESSION_SECRET"`
	AccessSessionTTLMinutes int    `env:"ACCESS_SESSION_TTL_MINUTES" envDefault:"720"`
	GrantRetentionDays      int    `env:"GRANT_RETENTION_DAYS" envDefault:"30"`
	UploadDir               string `env:"UPLOAD_DIR" envDefault:"uploads"`
	StaticDir               string `env:"STATIC_DIR" envDefault:"static"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) AccessSessionTTL() time.Duration {
	return time.Duration(c.AccessSessionTTLMinutes) * time.Minute
}

// GrantRetention is zero when purging of expired grants is disabled.
func (c *Config) GrantRetention() time.Duration {
	if c.GrantRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.GrantRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// BaseURL returns SiteURL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.SiteURL, "/")
}

func (c *Config) Validate(isProduction bool) error {
	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if _, err := url.ParseRequestURI(c.SiteURL); err != nil {
		return fmt.Errorf("SITE_URL is not a valid URL: %w", err)
	}

	if c.AccessSessionTTLMinutes <= 0 {
		return fmt.Errorf("ACCESS_SESSION_TTL_MINUTES must be positive")
	}

	if isProduction {
		if err := validateSecret("ADMIN_SESSION_SECRET", c.AdminSessionSecret); err != nil {
			return err
		}
		if err := validateSecret("ACCESS_SESSION_SECRET", c.AccessSessionSecret); err != nil {
			return err
		}

		if c.AdminPasswordHash == "" {
			log.Warn().Msg("ADMIN_PASSWORD_HASH is empty in production: password login disabled, only admin access links work")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if strings.HasPrefix(c.SiteURL, "http://") {
			log.Warn().Msg("SITE_URL uses http:// in production: access links will be sent over plain HTTP")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
