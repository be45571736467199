package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Registry store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,62}$`)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	StoreBackend  string `env:"STORE_BACKEND" default:"redis"`
	TableName     string `env:"TABLE_NAME" default:"connections"`
	StoreEndpoint string `env:"STORE_ENDPOINT"`
	Region        string `env:"AWS_REGION"`
	RedisURL      string `env:"REDIS_URL"`
	DatabaseURL   string `env:"DATABASE_URL"`

	ConnectionTTL   time.Duration `env:"CONNECTION_TTL" default:"1h"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" default:"5m"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" default:"10s"`

	EventsRateLimit float64 `env:"EVENTS_RATE_LIMIT" default:"50"`
	EventsRateBurst int     `env:"EVENTS_RATE_BURST" default:"100"`

	MaxSockets         int     `env:"MAX_SOCKETS" default:"10000"`
	MaxSocketsPerIP    int     `env:"MAX_SOCKETS_PER_IP" default:"50"`
	SocketConnectRate  float64 `env:"SOCKET_CONNECT_RATE" default:"10"`
	SocketConnectBurst int     `env:"SOCKET_CONNECT_BURST" default:"20"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// StoreURL returns the connection URL for the configured backend.
// STORE_ENDPOINT overrides the backend-specific variable.
func (c *Config) StoreURL() string {
	if c.StoreEndpoint != "" {
		return c.StoreEndpoint
	}
	switch c.StoreBackend {
	case BackendRedis:
		return c.RedisURL
	case BackendPostgres:
		return c.DatabaseURL
	default:
		return ""
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.StoreURL() == "" {
			return errors.New("REDIS_URL or STORE_ENDPOINT is required for the redis backend")
		}
	case BackendPostgres:
		if cfg.StoreURL() == "" {
			return errors.New("DATABASE_URL or STORE_ENDPOINT is required for the postgres backend")
		}
		if cfg.IsProduction() {
			if err := validateSSLMode(cfg.StoreURL()); err != nil {
				return err
			}
		}
	case BackendMemory:
		if cfg.IsProduction() {
			return errors.New("STORE_BACKEND=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of redis, postgres, memory; got %q", cfg.StoreBackend)
	}

	if !tableNamePattern.MatchString(cfg.TableName) {
		return fmt.Errorf("TABLE_NAME %q must start with a letter or underscore and contain only letters, digits, '_' or '-'", cfg.TableName)
	}

	if cfg.ConnectionTTL <= 0 {
		return errors.New("CONNECTION_TTL must be positive")
	}
	if cfg.SweepInterval < 0 {
		return errors.New("SWEEP_INTERVAL must not be negative")
	}
	if cfg.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}
	if cfg.EventsRateLimit <= 0 || cfg.EventsRateBurst <= 0 {
		return errors.New("EVENTS_RATE_LIMIT and EVENTS_RATE_BURST must be positive")
	}
	if cfg.MaxSockets < 0 || cfg.MaxSocketsPerIP < 0 || cfg.SocketConnectRate < 0 || cfg.SocketConnectBurst < 0 {
		return errors.New("socket limits must not be negative")
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
