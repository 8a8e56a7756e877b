package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string
	JWTSecret  string

	// Public origin used to build absolute result URLs, e.g. https://shop.example.com
	PublicBaseURL string

	AdyenMerchantAccount string
	AdyenSkinCode        string
	AdyenEnvironment     string
	NotificationUser     string
	NotificationPassHash string
	SessionValidity      time.Duration
	ShipBeforeDays       int
	ReconcileInterval    time.Duration
	NotificationClaimTTL time.Duration
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    os.Getenv("APP_PORT"),
		AppEnv:     os.Getenv("APP_ENV"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),

		AdyenMerchantAccount: os.Getenv("ADYEN_MERCHANT_ACCOUNT"),
		AdyenSkinCode:        os.Getenv("ADYEN_SKIN_CODE"),
		AdyenEnvironment:     envOr("ADYEN_ENVIRONMENT", "test"),
		NotificationUser:     os.Getenv("ADYEN_NOTIFICATION_USER"),
		NotificationPassHash: os.Getenv("ADYEN_NOTIFICATION_PASSWORD_HASH"),
		SessionValidity:      durationOr("SESSION_VALIDITY", time.Hour),
		ShipBeforeDays:       intOr("SHIP_BEFORE_DAYS", 3),
		ReconcileInterval:    durationOr("RECONCILE_INTERVAL", time.Minute),
		NotificationClaimTTL: durationOr("NOTIFICATION_CLAIM_TTL", 5*time.Minute),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

// IsProduction reports whether mock endpoints and dev logging must be disabled.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
