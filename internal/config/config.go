package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinPageRetries = 1
	MaxPageRetries = 10
)

type Config struct {
	DatabaseURL      string
	XeroClientID     string
	XeroClientSecret string
	XeroAPIBaseURL   string
	XeroTokenURL     string
	PollInterval     time.Duration
	MaxPageRetries   int
	StaleJobAfter    time.Duration
	ShutdownTimeout  time.Duration
	MetricsAddr      string
	LogLevel         string
	LogFormat        string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	clientID := os.Getenv("XERO_CLIENT_ID")
	clientSecret := os.Getenv("XERO_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		fmt.Println("Warning: XERO_CLIENT_ID or XERO_CLIENT_SECRET not set, token refresh will not work")
	}

	pageRetries := getEnvInt("MAX_PAGE_RETRIES", 5)
	if pageRetries > MaxPageRetries {
		pageRetries = MaxPageRetries
	} else if pageRetries < MinPageRetries {
		pageRetries = MinPageRetries
	}

	return &Config{
		DatabaseURL:      dbURL,
		XeroClientID:     clientID,
		XeroClientSecret: clientSecret,
		XeroAPIBaseURL:   getEnv("XERO_API_BASE_URL", "https://api.xero.com/api.xro/2.0"),
		XeroTokenURL:     getEnv("XERO_TOKEN_URL", "https://identity.xero.com/connect/token"),
		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SEC", 10)) * time.Second,
		MaxPageRetries:   pageRetries,
		StaleJobAfter:    time.Duration(getEnvInt("STALE_JOB_AFTER_SEC", 300)) * time.Second,
		ShutdownTimeout:  time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SEC", 30)) * time.Second,
		MetricsAddr:      getEnv("METRICS_ADDR", ":9090"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		LogFormat:        getEnv("LOG_FORMAT", "TEXT"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
