package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// Ranking pipeline tuning.
	RankingCacheTTL time.Duration
	ScanConcurrency int
	ScanDeadline    time.Duration
	RetryBackoff    time.Duration
	CatalogRefresh  time.Duration

	// Optional override files; empty means built-in defaults only.
	ScoringTablePath  string
	NameOverridesPath string
	ExtraTeamsPath    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ScoringTablePath:  getEnv("SCORING_TABLE_PATH", ""),
		NameOverridesPath: getEnv("NAME_OVERRIDES_PATH", ""),
		ExtraTeamsPath:    getEnv("EXTRA_TEAMS_PATH", ""),
	}

	cacheTTL, err := strconv.Atoi(getEnv("RANKING_CACHE_TTL", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid RANKING_CACHE_TTL: %w", err)
	}
	config.RankingCacheTTL = time.Duration(cacheTTL) * time.Second

	concurrency, err := strconv.Atoi(getEnv("SCAN_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_CONCURRENCY: %w", err)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("invalid SCAN_CONCURRENCY: must be at least 1")
	}
	config.ScanConcurrency = concurrency

	deadline, err := strconv.Atoi(getEnv("SCAN_DEADLINE", "45"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_DEADLINE: %w", err)
	}
	config.ScanDeadline = time.Duration(deadline) * time.Second

	backoff, err := strconv.Atoi(getEnv("SCAN_RETRY_BACKOFF_MS", "500"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCAN_RETRY_BACKOFF_MS: %w", err)
	}
	config.RetryBackoff = time.Duration(backoff) * time.Millisecond

	refresh, err := strconv.Atoi(getEnv("CATALOG_REFRESH", "600"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_REFRESH: %w", err)
	}
	config.CatalogRefresh = time.Duration(refresh) * time.Second

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
