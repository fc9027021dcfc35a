package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseProvider    string `env:"DATABASE_PROVIDER" envDefault:"postgres" validate:"oneof=postgres memory"`
	DatabaseURL         string `env:"DATABASE_URL" validate:"required_if=DatabaseProvider postgres"`
	DatabaseAutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"false"`

	AuthTokenSecret string        `env:"AUTH_TOKEN_SECRET,required" validate:"required,min=32"`
	AuthTokenTTL    time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h" validate:"gt=0"`
	BaseURL         string        `env:"BASE_URL" validate:"omitempty,url"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	SessionStoreProvider  string `env:"SESSION_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=SessionStoreProvider redis"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"none" validate:"omitempty,oneof=none postmark resend mailgun"`
	EmailAPIKey   string `env:"EMAIL_API_KEY"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"omitempty,email"`
	EmailDomain   string `env:"EMAIL_DOMAIN" validate:"required_if=EmailProvider mailgun"`

	RewardsFile              string        `env:"REWARDS_FILE"`
	ResaleFallbackPriceCents int           `env:"RESALE_FALLBACK_PRICE_CENTS" envDefault:"10000" validate:"gt=0"`
	NotificationTimeout      time.Duration `env:"NOTIFICATION_TIMEOUT" envDefault:"15s" validate:"gt=0"`

	SentryDSN   string `env:"SENTRY_DSN"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	LogFile   string     `env:"LOG_FILE"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

// Load reads .env (when present) into the process environment and parses it.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	emailEnabled := c.EmailProvider != "" && c.EmailProvider != "none"
	if emailEnabled {
		if strings.TrimSpace(c.EmailAPIKey) == "" || strings.TrimSpace(c.EmailFrom) == "" {
			return fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM are required when EMAIL_PROVIDER is %s", c.EmailProvider)
		}
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if emailEnabled && baseURL == "" {
		return fmt.Errorf("BASE_URL is required when email notifications are enabled")
	}

	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	return nil
}

// SecureCookies reports whether session cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}
	return c.Port == "443" || c.Port == "8443"
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
