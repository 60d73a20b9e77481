package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Typesense   TypesenseConfig
	RabbitMQ    RabbitMQConfig
	OTEL        OTELConfig
	Session     SessionConfig
	Reservation ReservationConfig
	Events      EventsConfig
	Store       StoreConfig
	Cache       CacheConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL     string
	APIKey  string
	Enabled bool
}

// RabbitMQConfig holds RabbitMQ configuration for the amqp event bus
type RabbitMQConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	VHost      string
	Exchange   string
	RetryCount int
	RetryDelay time.Duration
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// SessionConfig holds the signed session cookie settings
type SessionConfig struct {
	CookieName string
	Secret     string
	MaxAge     time.Duration
}

// ReservationConfig holds booking rules
type ReservationConfig struct {
	MaxDuration  time.Duration
	StoreTimeout time.Duration
}

// EventsConfig selects the event bus transport
type EventsConfig struct {
	Driver string // redis, amqp or none
}

// StoreConfig selects the reservation store
type StoreConfig struct {
	Driver      string // postgres or memory
	AutoMigrate bool
}

// CacheConfig selects the cache backend
type CacheConfig struct {
	Driver string // redis, memory or none
	Size   int    // entries, memory driver only
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "dormnet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			URL:     getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
			Enabled: getEnvAsBool("TYPESENSE_ENABLED", false),
		},
		RabbitMQ: RabbitMQConfig{
			Host:       getEnv("RABBITMQ_HOST", "localhost"),
			Port:       getEnvAsInt("RABBITMQ_PORT", 5672),
			Username:   getEnv("RABBITMQ_USERNAME", "guest"),
			Password:   getEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:      getEnv("RABBITMQ_VHOST", "/"),
			Exchange:   getEnv("RABBITMQ_EXCHANGE", "dormnet.reservations"),
			RetryCount: getEnvAsInt("RABBITMQ_RETRY_COUNT", 3),
			RetryDelay: getEnvAsDuration("RABBITMQ_RETRY_DELAY", 5*time.Second),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "dormnet"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE_NAME", "session"),
			Secret:     getEnv("SESSION_SECRET", ""),
			MaxAge:     getEnvAsDuration("SESSION_MAX_AGE", 30*24*time.Hour),
		},
		Reservation: ReservationConfig{
			MaxDuration:  getEnvAsDuration("RESERVATION_MAX_DURATION", 6*time.Hour),
			StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Events: EventsConfig{
			Driver: getEnv("EVENT_BUS_DRIVER", "redis"),
		},
		Store: StoreConfig{
			Driver:      getEnv("STORE_DRIVER", "postgres"),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Cache: CacheConfig{
			Driver: getEnv("CACHE_DRIVER", "redis"),
			Size:   getEnvAsInt("CACHE_SIZE", 1024),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Reservation.MaxDuration <= 0 {
		return fmt.Errorf("RESERVATION_MAX_DURATION must be positive")
	}
	if c.Reservation.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	switch c.Events.Driver {
	case "redis", "amqp", "none":
	default:
		return fmt.Errorf("unknown EVENT_BUS_DRIVER %q", c.Events.Driver)
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Cache.Driver {
	case "redis", "none":
	case "memory":
		if c.Cache.Size <= 0 {
			return fmt.Errorf("CACHE_SIZE must be positive")
		}
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q", c.Cache.Driver)
	}
	if c.Environment == "production" && c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required in production")
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnectionURL returns the amqp URL
func (c *RabbitMQConfig) ConnectionURL() string {
	vhost := strings.TrimPrefix(c.VHost, "/")
	if vhost != "" {
		vhost = "/" + url.PathEscape(vhost)
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Port, vhost)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
