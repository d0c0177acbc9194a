package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// HeyDoc REST backend
	APIBaseURL   string
	APIToken     string
	APITimeout   time.Duration
	APIRateLimit float64
	APIBurst     int
	LoginPath    string

	// Scheduling rules
	Timezone           string
	CancellationWindow time.Duration
	BookingHorizonDays int
	ExcludeWeekends    bool

	// Optional availability persistence
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:   strings.TrimRight(getEnv("HEYDOC_API_BASE_URL", "http://localhost:8000/api"), "/"),
		APIToken:     getEnv("HEYDOC_API_TOKEN", ""),
		APITimeout:   getEnvAsDuration("HEYDOC_API_TIMEOUT", 15*time.Second),
		APIRateLimit: getEnvAsFloat("HEYDOC_API_RATE_LIMIT", 10),
		APIBurst:     getEnvAsInt("HEYDOC_API_BURST", 30),
		LoginPath:    getEnv("HEYDOC_LOGIN_PATH", "/auth/login"),

		Timezone:           getEnv("SCHEDULING_TIMEZONE", "Local"),
		CancellationWindow: getEnvAsDuration("CANCELLATION_WINDOW", 24*time.Hour),
		BookingHorizonDays: getEnvAsInt("BOOKING_HORIZON_DAYS", 30),
		ExcludeWeekends:    getEnvAsBool("EXCLUDE_WEEKENDS", true),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// Location resolves the configured scheduling time zone. Unknown names fall
// back to time.Local.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
