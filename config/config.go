package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	App       AppConfig
	AWS       AWSConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `env:"PORT" envDefault:"8080"`
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	// TrustedProxies are the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the client IP is always the socket address.
	TrustedProxies     []string      `env:"TRUSTED_PROXIES" envSeparator:","`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"` // if set, used as-is
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName   string `env:"DB_NAME" envDefault:"wondershark"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"2"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// JWTConfig holds session token signing and cookie settings.
type JWTConfig struct {
	Secret       string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	Expire       time.Duration `env:"JWT_EXPIRE" envDefault:"24h"`
	CookieName   string        `env:"SESSION_COOKIE_NAME" envDefault:"ws_session"`
	CookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"true"`
}

// AppConfig holds product-level settings.
type AppConfig struct {
	BaseURL       string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"48h"`
	// NotifyMode is "queue" (Redis + worker) or "direct" (send inside the request).
	// In queue mode issue and resend only confirm the enqueue; SMTP failures
	// surface later on the agency's delivery log. Direct mode reports them in
	// the response.
	NotifyMode     string `env:"NOTIFY_MODE" envDefault:"queue"`
	EmbeddedWorker bool   `env:"RUN_EMBEDDED_WORKER" envDefault:"false"`
}

// AWSConfig holds AWS credentials and the assets bucket used for agency logos.
type AWSConfig struct {
	Region               string `env:"AWS_REGION"`
	AccessKeyID          string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey      string `env:"AWS_SECRET_ACCESS_KEY"`
	AssetsBucket         string `env:"AWS_S3_ASSETS_BUCKET"`
	PresignExpireMinutes int    `env:"AWS_PRESIGN_EXPIRE_MINUTES" envDefault:"15"`
}

// EmailConfig for SMTP delivery.
type EmailConfig struct {
	FromAddress string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@wondershark.app"`
	FromName    string `env:"EMAIL_FROM_NAME" envDefault:"WonderShark"`
	SMTPHost    string `env:"SMTP_HOST"`
	SMTPPort    int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser    string `env:"SMTP_USER"`
	SMTPPass    string `env:"SMTP_PASS"`
}

// RateLimitConfig bounds unauthenticated endpoints (login, register, invitation acceptance) per client IP.
type RateLimitConfig struct {
	PerMinute int `env:"RATELIMIT_PUBLIC_PER_MINUTE" envDefault:"20"`
	Burst     int `env:"RATELIMIT_PUBLIC_BURST" envDefault:"10"`
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.App.NotifyMode {
	case "queue", "direct":
	default:
		return fmt.Errorf("NOTIFY_MODE must be queue or direct, got %q", c.App.NotifyMode)
	}
	if c.App.InvitationTTL <= 0 {
		return fmt.Errorf("INVITATION_TTL must be positive")
	}
	if _, err := url.ParseRequestURI(c.App.BaseURL); err != nil {
		return fmt.Errorf("APP_BASE_URL: %w", err)
	}
	return nil
}
