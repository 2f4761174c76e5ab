package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Booking  BookingConfig
	PayMongo PayMongoConfig
	CORS     CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// BookingConfig holds seat-hold and payment-polling configuration.
// The hold TTL bounds how long a pending booking keeps seats off the map;
// the poll settings bound how long ChooseMethod waits on a gateway stuck
// in "processing" before giving up.
type BookingConfig struct {
	HoldTTL          time.Duration
	PollMaxAttempts  int
	PollInterval     time.Duration
	RetentionDays    int // terminal bookings older than this are purged by the nightly job
	ReaperInterval   time.Duration
	MaxSeatsPerOrder int
}

// PayMongoConfig holds PayMongo gateway configuration
type PayMongoConfig struct {
	BaseURL   string
	SecretKey string // server-side key (SECRET - never expose to client)
	PublicKey string // public key returned to the client for client-side calls
	ReturnURL string // URL the gateway redirects to after 3DS / e-wallet
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Booking: BookingConfig{
			HoldTTL:          time.Duration(getEnvAsInt("BOOKING_HOLD_TTL_SECONDS", 600)) * time.Second,
			PollMaxAttempts:  getEnvAsInt("PAYMENT_POLL_MAX_ATTEMPTS", 10),
			PollInterval:     time.Duration(getEnvAsInt("PAYMENT_POLL_INTERVAL_SECONDS", 3)) * time.Second,
			RetentionDays:    getEnvAsInt("BOOKING_RETENTION_DAYS", 90),
			ReaperInterval:   time.Duration(getEnvAsInt("HOLD_REAPER_INTERVAL_SECONDS", 60)) * time.Second,
			MaxSeatsPerOrder: getEnvAsInt("BOOKING_MAX_SEATS", 10),
		},
		PayMongo: PayMongoConfig{
			BaseURL:   getEnv("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1"),
			SecretKey: getEnv("PAYMONGO_SECRET_KEY", ""),
			PublicKey: getEnv("PAYMONGO_PUBLIC_KEY", ""),
			ReturnURL: getEnv("PAYMONGO_RETURN_URL", "http://localhost:5173/payment/return"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization"}),
		},
	}

	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
