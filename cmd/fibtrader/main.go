// fibtrader - retracement trading simulator
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fibtrader/internal/config"
)

var (
	configPath string
	overrides  flagValues
)

// flagValues holds every flag that can override configuration.
type flagValues struct {
	account       string
	capital       float64
	strategy      string
	mode          string
	quoteSource   string
	quotesPath    string
	statePath     string
	decisionsPath string
	listen        string
	logLevel      string
	logPretty     bool
	noMarketHours bool
	interval      time.Duration
	duration      time.Duration
	watch         []string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "fibtrader",
		Short: "Retracement-level equity trading simulator",
		Long: `fibtrader watches a list of symbols, looks for price action near
retracement levels confirmed by projected volume, and settles the resulting
trades against a persisted paper portfolio.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&overrides.account, "account", "", "account name for a new portfolio")
	flags.Float64Var(&overrides.capital, "capital", 0, "initial capital for a new portfolio")
	flags.StringVar(&overrides.strategy, "strategy", "", "strategy id (fib-retracement, sma)")
	flags.StringVar(&overrides.mode, "mode", "", "execution mode: sim or paper")
	flags.StringVar(&overrides.quoteSource, "quote-source", "", "quote source: file or alpaca")
	flags.StringVar(&overrides.quotesPath, "quotes", "", "quote script for the file source")
	flags.StringVar(&overrides.statePath, "state", "", "portfolio path (.json, .msgpack or .db)")
	flags.StringVar(&overrides.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&overrides.logPretty, "log-pretty", false, "human readable logs")
	flags.BoolVar(&overrides.noMarketHours, "ignore-market-hours", false, "evaluate outside regular trading hours")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(portfolioCmd())
	rootCmd.AddCommand(tradeCmd())
	rootCmd.AddCommand(liquidateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves configuration and applies flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("account") {
		cfg.AccountName = overrides.account
	}
	if changed("capital") {
		cfg.Capital = overrides.capital
	}
	if changed("strategy") {
		cfg.Strategy = overrides.strategy
	}
	if changed("mode") {
		cfg.Mode = config.Mode(overrides.mode)
	}
	if changed("quote-source") {
		cfg.QuoteSource = config.QuoteSource(overrides.quoteSource)
	}
	if changed("quotes") {
		cfg.QuotesPath = overrides.quotesPath
	}
	if changed("state") {
		cfg.StatePath = overrides.statePath
	}
	if changed("log-level") {
		cfg.LogLevel = overrides.logLevel
	}
	if changed("log-pretty") {
		cfg.LogPretty = overrides.logPretty
	}
	if changed("ignore-market-hours") {
		cfg.MarketHours = !overrides.noMarketHours
	}
	if changed("decisions") {
		cfg.DecisionsPath = overrides.decisionsPath
	}
	if changed("listen") {
		cfg.ListenAddr = overrides.listen
	}
	if changed("interval") {
		cfg.Interval = overrides.interval
	}
	if changed("duration") {
		cfg.Duration = overrides.duration
	}
	if changed("watch") {
		cfg.WatchList = overrides.watch
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
