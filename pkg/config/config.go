// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Google    GoogleConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	Extractor ServiceConfig
	Advisor   ServiceConfig
	LogLevel  string
	LogFormat string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the store. An empty URL selects sqlite at Path.
type DatabaseConfig struct {
	URL  string
	Path string
}

// GoogleConfig holds the OAuth client for Google Calendar.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CalendarID   string
}

// RedisConfig configures the distributed lock. Empty URL selects in-process
// locking.
type RedisConfig struct {
	URL string
}

// RabbitMQConfig configures event publishing. Empty URL disables it.
type RabbitMQConfig struct {
	URL string
}

// ServiceConfig configures one LLM-backed helper service.
type ServiceConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
}

// Load reads the environment, applying .env first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("DIAGURU_HOST", "0.0.0.0"),
			Port:            getIntEnv("DIAGURU_PORT", 8080),
			ReadTimeout:     getDurationEnv("DIAGURU_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("DIAGURU_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("DIAGURU_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:  getEnv("DATABASE_URL", ""),
			Path: getEnv("DIAGURU_DB_PATH", "diaguru.db"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			CalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),
		},
		Redis:    RedisConfig{URL: getEnv("REDIS_URL", "")},
		RabbitMQ: RabbitMQConfig{URL: getEnv("RABBITMQ_URL", "")},
		Extractor: ServiceConfig{
			Enabled: getBoolEnv("EXTRACTOR_ENABLED", false),
			APIKey:  getEnv("EXTRACTOR_API_KEY", ""),
			BaseURL: getEnv("EXTRACTOR_BASE_URL", ""),
			Model:   getEnv("EXTRACTOR_MODEL", ""),
		},
		Advisor: ServiceConfig{
			Enabled: getBoolEnv("ADVISOR_ENABLED", false),
			APIKey:  getEnv("ADVISOR_API_KEY", ""),
			BaseURL: getEnv("ADVISOR_BASE_URL", ""),
			Model:   getEnv("ADVISOR_MODEL", ""),
		},
		LogLevel:  getEnv("DIAGURU_LOG_LEVEL", "info"),
		LogFormat: getEnv("DIAGURU_LOG_FORMAT", "json"),
	}

	if cfg.Extractor.Enabled && cfg.Extractor.APIKey == "" {
		return nil, fmt.Errorf("EXTRACTOR_API_KEY is required when the extractor is enabled")
	}
	if cfg.Advisor.Enabled && cfg.Advisor.APIKey == "" {
		return nil, fmt.Errorf("ADVISOR_API_KEY is required when the advisor is enabled")
	}
	return cfg, nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
