package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded from the environment
// with an optional .env file for local development.
type Config struct {
	Port        string
	GinMode     string
	DataDir     string
	ModelsDir   string
	JWTSecret   string
	FreeLimit   int
	CacheTTL    time.Duration
	CORSOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string

	EnableProfiling bool
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	return &Config{
		Port:      getEnvOrDefault("PORT", "8080"),
		GinMode:   getEnvOrDefault("GIN_MODE", "release"),
		DataDir:   getEnvOrDefault("DATA_DIR", "./data"),
		ModelsDir: getEnvOrDefault("MODELS_DIR", "./models"),
		JWTSecret: getEnvOrDefault("JWT_SECRET", "dev-secret-change-in-production"),
		FreeLimit: getEnvIntOrDefault("FREE_WEEKLY_LIMIT", 5),
		CacheTTL:  getEnvDurationOrDefault("CACHE_TTL", 5*time.Minute),
		CORSOrigins: strings.Split(
			getEnvOrDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		StripeSecretKey:     getEnvOrDefault("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnvOrDefault("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceID:       getEnvOrDefault("STRIPE_PRICE_ID", ""),

		EnableProfiling: getEnvOrDefault("ENABLE_PROFILING", "false") == "true",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return parsed
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
		return defaultValue
	}
	return parsed
}
