// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings
	DatabaseDriver string
	DatabaseDSN    string

	// LLM defaults, copied into the store when no config row exists yet
	LLM LLMDefaults

	// NATS settings; an empty URL disables event publishing
	NATSURL      string
	NATSToken    string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string

	// Rate limiting of the reply endpoint
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Config read cache
	ConfigCacheTTL time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// LLMDefaults are the upstream settings taken from the environment.
type LLMDefaults struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	Temperature float64
	Timeout     time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is read first; variables already set take precedence.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// Database
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "followchat.db"),

		// LLM
		LLM: LLMDefaults{
			APIKey:      getEnv("LLM_API_KEY", ""),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			ModelName:   getEnv("LLM_MODEL_NAME", "gpt-3.5-turbo"),
			Temperature: getFloatEnv("LLM_TEMPERATURE", 1.0),
			Timeout:     getDurationEnv("LLM_TIMEOUT", 30*time.Second),
		},

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		ConfigCacheTTL: getDurationEnv("CONFIG_CACHE_TTL", 30*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
