package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fibtrader/internal/strategy"
)

type Mode string

const (
	ModeSim   Mode = "sim"
	ModePaper Mode = "paper"
)

type QuoteSource string

const (
	SourceFile   QuoteSource = "file"
	SourceAlpaca QuoteSource = "alpaca"
)

type Config struct {
	AccountName   string            `yaml:"account_name"`
	Capital       float64           `yaml:"capital"`
	Strategy      string            `yaml:"strategy"`
	Mode          Mode              `yaml:"mode"`
	QuoteSource   QuoteSource       `yaml:"quote_source"`
	QuotesPath    string            `yaml:"quotes_path"`
	Interval      time.Duration     `yaml:"interval"`
	Duration      time.Duration     `yaml:"duration"`
	QuoteTimeout  time.Duration     `yaml:"quote_timeout"`
	Commission    float64           `yaml:"commission"`
	MarketHours   bool              `yaml:"market_hours"`
	Timezone      string            `yaml:"timezone"`
	StatePath     string            `yaml:"state_path"`
	DecisionsPath string            `yaml:"decisions_path"`
	ListenAddr    string            `yaml:"listen_addr"`
	LogLevel      string            `yaml:"log_level"`
	LogPretty     bool              `yaml:"log_pretty"`
	WatchList     []string          `yaml:"watch_list"`
	MarketCaps    map[string]string `yaml:"market_caps"`
	Feed          string            `yaml:"feed"`
	PaperBaseURL  string            `yaml:"paper_base_url"`
	APIKey        string            `yaml:"-"`
	APISecret     string            `yaml:"-"`
}

func Defaults() Config {
	return Config{
		AccountName:   "default",
		Capital:       100000,
		Strategy:      strategy.DefaultName,
		Mode:          ModeSim,
		QuoteSource:   SourceFile,
		QuotesPath:    "quotes.yaml",
		Interval:      10 * time.Second,
		QuoteTimeout:  5 * time.Second,
		Commission:    20,
		MarketHours:   true,
		Timezone:      "America/New_York",
		StatePath:     "portfolio.json",
		DecisionsPath: "decisions.ndjson",
		LogLevel:      "info",
		Feed:          "iex",
		PaperBaseURL:  "https://paper-api.alpaca.markets",
	}
}

// Load resolves configuration from defaults, then the YAML file at path (if
// any), then the environment. A .env file in the working directory is read
// first without overriding variables already set. Flags are applied by the
// caller, which then calls Validate.
func Load(path string) (Config, error) {
	cfg := Defaults()

	loadDotEnvIfPresent(".env")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Location returns the market timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) Validate() error {
	return validate(c)
}

func validate(cfg Config) error {
	if cfg.Mode != ModeSim && cfg.Mode != ModePaper {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	switch cfg.QuoteSource {
	case SourceFile:
		if cfg.QuotesPath == "" {
			return errors.New("quotes-path is required for the file quote source")
		}
	case SourceAlpaca:
	default:
		return fmt.Errorf("invalid quote source: %s", cfg.QuoteSource)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		if cfg.Mode == ModePaper || cfg.QuoteSource == SourceAlpaca {
			return errors.New("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required for alpaca quotes and paper mode")
		}
	}
	if cfg.Capital <= 0 {
		return errors.New("capital must be > 0")
	}
	if cfg.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if cfg.QuoteTimeout <= 0 {
		return errors.New("quote-timeout must be > 0")
	}
	if cfg.Duration < 0 {
		return errors.New("duration must be >= 0")
	}
	if cfg.Commission < 0 {
		return errors.New("commission must be >= 0")
	}
	if cfg.StatePath == "" {
		return errors.New("state-path is required")
	}
	if _, err := strategy.New(cfg.Strategy); err != nil {
		return err
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}
