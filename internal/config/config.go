// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration for the discovery service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string // optional; run events are not published without it

	OpenRouterAPIKey string // optional; classifier is skipped without it
	GoogleCSEAPIKey  string
	GoogleCSEID      string

	ResendAPIKey         string // optional; digest is skipped without it
	ResendDomainVerified bool

	ScrapeIntervalHours int    // How often the pipeline cron job fires
	DigestSchedule      string // cron spec; empty disables the scheduled digest
	UpsertBatchSize     int

	CatalogPath string // YAML catalogue; empty uses the embedded default
	LogMode     string
	LogFile     string
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	interval, err := positiveInt("SCRAPE_INTERVAL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	batch, err := positiveInt("UPSERT_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}

	port := os.Getenv("DISCOVERY_PORT")
	if port == "" {
		port = "8081"
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             os.Getenv("REDIS_URL"),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		GoogleCSEAPIKey:      os.Getenv("GOOGLE_CSE_API_KEY"),
		GoogleCSEID:          os.Getenv("GOOGLE_CSE_ID"),
		ResendAPIKey:         os.Getenv("RESEND_API_KEY"),
		ResendDomainVerified: strings.EqualFold(os.Getenv("RESEND_DOMAIN_VERIFIED"), "true"),
		ScrapeIntervalHours:  interval,
		DigestSchedule:       strings.TrimSpace(os.Getenv("DIGEST_SCHEDULE")),
		UpsertBatchSize:      batch,
		CatalogPath:          os.Getenv("SCOUTED_CATALOG"),
		LogMode:              os.Getenv("LOG_MODE"),
		LogFile:              os.Getenv("LOG_FILE"),
	}, nil
}

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, s)
	}
	return v, nil
}
