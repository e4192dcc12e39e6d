package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	AppEnv    string
	Debug     bool
	Version   string
	BotToken  string
	SentryDSN string

	MongoDBURI      string
	MongoDBDatabase string

	// Lease coordination for the single active ingestion instance.
	LeaseTTL           time.Duration
	LeaseRetryInterval time.Duration

	// Dispatcher tuning.
	SlotPollInterval time.Duration
	MisfireGrace     time.Duration

	// Publishing.
	DefaultPlanDays    int
	StaleApprovedAfter time.Duration

	// Expiration handling.
	ExpiryNotifyEnabled bool
	ArchiveEnabled      bool
	ArchiveAfterDays    int
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Debug:     debug,
		Version:   getEnv("VERSION", "dev"),
		BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		MongoDBURI:      getEnv("MONGODB_URI", ""),
		MongoDBDatabase: getEnv("MONGODB_DATABASE", ""),

		LeaseTTL:           getEnvDuration("LEASE_TTL", 120*time.Second),
		LeaseRetryInterval: getEnvDuration("LEASE_RETRY_INTERVAL", 30*time.Second),

		SlotPollInterval: getEnvDuration("SLOT_POLL_INTERVAL", 60*time.Second),
		MisfireGrace:     getEnvDuration("MISFIRE_GRACE", 30*time.Second),

		DefaultPlanDays:    getEnvInt("DEFAULT_PLAN_DAYS", 30),
		StaleApprovedAfter: getEnvDuration("STALE_APPROVED_AFTER", 72*time.Hour),

		ExpiryNotifyEnabled: getEnvBool("EXPIRY_NOTIFY_ENABLED", false),
		ArchiveEnabled:      getEnvBool("ARCHIVE_ENABLED", false),
		ArchiveAfterDays:    getEnvInt("ARCHIVE_AFTER_DAYS", 30),
	}

	// Basic validation for essential variables
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	if cfg.MongoDBDatabase == "" {
		return nil, fmt.Errorf("MONGODB_DATABASE is required")
	}
	if cfg.LeaseTTL < 20*time.Second {
		return nil, fmt.Errorf("LEASE_TTL must be at least 20s, got %s", cfg.LeaseTTL)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("Warning: invalid boolean for %s, using default %v", key, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		log.Printf("Warning: invalid integer for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		log.Printf("Warning: invalid duration for %s, using default %s", key, defaultValue)
	}
	return defaultValue
}
