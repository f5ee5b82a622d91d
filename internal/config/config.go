// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmagid/ratedash/internal/models"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath    string
	WatchlistPath   string
	BackendURL      string
	AlphaVantageKey string
	BaseCurrency    models.Currency
	Currencies      []models.Currency
	DailyCallLimit  int
	MinCallInterval time.Duration
	Debug           bool
}

// Default values. The call limits stay one notch under the provider's
// published free-tier quota (25 calls/day, 5 calls/minute) so a single
// stray request never trips the real limit.
const (
	defaultDailyCallLimit  = 24
	defaultMinCallInterval = 15 * time.Second
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	for _, path := range getEnvPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:    getEnvString("RATEDASH_DATABASE_PATH", defaultConfigFile("rates.db")),
		WatchlistPath:   getEnvString("RATEDASH_WATCHLIST_PATH", defaultConfigFile("watchlist.json")),
		BackendURL:      getEnvString("RATEDASH_BACKEND_URL", ""),
		AlphaVantageKey: getEnvString("ALPHAVANTAGE_API_KEY", ""),
		BaseCurrency:    models.Currency(getEnvString("RATEDASH_BASE_CURRENCY", string(models.BaseCurrency))),
		Currencies:      getEnvCurrencies("RATEDASH_CURRENCIES", models.DefaultCurrencies),
		DailyCallLimit:  getEnvInt("RATEDASH_DAILY_CALL_LIMIT", defaultDailyCallLimit),
		MinCallInterval: getEnvDuration("RATEDASH_MIN_CALL_INTERVAL", defaultMinCallInterval),
		Debug:           getEnvString("RATEDASH_DEBUG", "") != "",
	}

	if cfg.AlphaVantageKey == "" {
		return nil, fmt.Errorf("ALPHAVANTAGE_API_KEY is required (get a free key at alphavantage.co)")
	}

	if !models.IsSupported(cfg.BaseCurrency, cfg.Currencies) {
		return nil, fmt.Errorf("base currency %s is not in the supported set %v",
			cfg.BaseCurrency, cfg.Currencies)
	}

	// Ensure data directories exist
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}
	if err := ensureDir(filepath.Dir(cfg.WatchlistPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "ratedash", ".env"),
			filepath.Join(home, ".ratedash", ".env"),
		)
	}

	return paths
}

// defaultConfigFile returns a path under the default config directory.
func defaultConfigFile(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".config", "ratedash", name)
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the
// default. Accepts values like "15s", "1m", "500ms" or a bare second count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvCurrencies parses a comma-separated currency list, e.g. "USD,EUR,JPY".
func getEnvCurrencies(key string, defaultValue []models.Currency) []models.Currency {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var currencies []models.Currency
	for _, part := range strings.Split(value, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			currencies = append(currencies, models.Currency(code))
		}
	}
	if len(currencies) == 0 {
		return defaultValue
	}
	return currencies
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
