package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func loadDotEnvIfPresent(path string) {
	if err := loadDotEnv(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", path, err)
	}
}

// loadDotEnv sets variables from path that are not already in the
// environment.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}

func applyEnv(cfg *Config) error {
	vars := map[string]*string{
		"FIBTRADER_ACCOUNT":        &cfg.AccountName,
		"FIBTRADER_STRATEGY":       &cfg.Strategy,
		"FIBTRADER_QUOTES_PATH":    &cfg.QuotesPath,
		"FIBTRADER_STATE_PATH":     &cfg.StatePath,
		"FIBTRADER_DECISIONS_PATH": &cfg.DecisionsPath,
		"FIBTRADER_LISTEN_ADDR":    &cfg.ListenAddr,
		"FIBTRADER_LOG_LEVEL":      &cfg.LogLevel,
		"FIBTRADER_TIMEZONE":       &cfg.Timezone,
		"APCA_API_KEY_ID":          &cfg.APIKey,
		"APCA_API_SECRET_KEY":      &cfg.APISecret,
		"APCA_API_BASE_URL":        &cfg.PaperBaseURL,
		"APCA_DATA_FEED":           &cfg.Feed,
	}
	for key, dst := range vars {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("FIBTRADER_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("FIBTRADER_QUOTE_SOURCE"); v != "" {
		cfg.QuoteSource = QuoteSource(v)
	}
	if v := os.Getenv("FIBTRADER_CAPITAL"); v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FIBTRADER_CAPITAL: %w", err)
		}
		cfg.Capital = capital
	}
	if v := os.Getenv("FIBTRADER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FIBTRADER_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("FIBTRADER_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FIBTRADER_DURATION: %w", err)
		}
		cfg.Duration = d
	}
	if v := os.Getenv("FIBTRADER_WATCH"); v != "" {
		cfg.WatchList = nil
		for _, ticker := range strings.Split(v, ",") {
			if ticker = strings.TrimSpace(ticker); ticker != "" {
				cfg.WatchList = append(cfg.WatchList, ticker)
			}
		}
	}
	return nil
}
