package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort      int
	DatabasePath    string
	JWTSecret       string
	TokenTTLMinutes int
	AuditSchedule   string // standard cron expression for the ledger auditor
	AppEnv          string
}

// Load loads configuration from a .env file (if present) and the
// environment, falling back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, err
	}

	ttl, err := strconv.Atoi(getEnv("TOKEN_TTL_MINUTES", "30"))
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:      port,
		DatabasePath:    getEnv("DATABASE_PATH", "./dignity.db"),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTLMinutes: ttl,
		AuditSchedule:   getEnv("AUDIT_SCHEDULE", "*/5 * * * *"),
		AppEnv:          getEnv("APP_ENV", "development"),
	}, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
