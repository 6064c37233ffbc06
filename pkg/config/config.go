// Package config loads all service settings from environment variables.
// Construction fails fast when a required secret is missing so the process
// never starts half-configured.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Webhook  WebhookConfig
	Reaper   ReaperConfig
	Email    EmailConfig
}

type HTTPConfig struct {
	Port        string
	CORSOrigins string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	UserTTL    time.Duration
	ServiceTTL time.Duration
}

type WebhookConfig struct {
	Timeout time.Duration
}

type ReaperConfig struct {
	Interval time.Duration
}

type EmailConfig struct {
	// Provider is "ses" or "console".
	Provider    string
	Region      string
	FromAddress string
}

// Load reads the configuration from the environment. It returns an error
// when JWT_SECRET or the database password is missing.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "bifrost"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnv("DB_NAME", "bifrost"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     os.Getenv("JWT_SECRET"),
			Issuer:     getEnv("JWT_ISSUER", "bifrost"),
			UserTTL:    getEnvDuration("JWT_USER_TTL", 7*24*time.Hour),
			ServiceTTL: getEnvDuration("JWT_SERVICE_TTL", 24*time.Hour),
		},
		Webhook: WebhookConfig{
			Timeout: getEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		},
		Reaper: ReaperConfig{
			Interval: getEnvDuration("REAPER_INTERVAL", 60*time.Minute),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "console"),
			Region:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@bifrost.local"),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("config: DB_PASSWORD is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
