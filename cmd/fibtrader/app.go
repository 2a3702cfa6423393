package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/allocation"
	"fibtrader/internal/broker"
	"fibtrader/internal/config"
	"fibtrader/internal/database"
	"fibtrader/internal/engine"
	"fibtrader/internal/ledger"
	"fibtrader/internal/logger"
	"fibtrader/internal/md"
	"fibtrader/internal/risk"
	"fibtrader/internal/strategy"
	"fibtrader/internal/symbol"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg        config.Config
	log        zerolog.Logger
	runID      string
	store      ledger.Store
	closeStore func() error
	ledger     *ledger.Ledger
	quotes     *md.Cache
	decisions  *engine.DecisionLogger
	engine     *engine.Engine
}

func newApp(ctx context.Context, cfg config.Config, withDecisions bool) (*app, error) {
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Out: os.Stderr})
	logger.SetGlobalLogger(log)

	a := &app{cfg: cfg, log: log, runID: uuid.NewString()}
	a.log = log.With().Str("run_id", a.runID).Logger()

	store, closeStore, err := openStore(cfg.StatePath)
	if err != nil {
		return nil, err
	}
	a.store, a.closeStore = store, closeStore

	a.ledger, err = loadLedger(ctx, store, cfg)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	provider, err := newProvider(cfg, a.log)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	a.quotes = md.NewCache(provider)

	sink, err := newSink(ctx, cfg, a.quotes, a.log)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	if withDecisions && cfg.DecisionsPath != "" {
		a.decisions, err = engine.NewDecisionLogger(cfg.DecisionsPath, a.runID, a.log)
		if err != nil {
			_ = closeStore()
			return nil, fmt.Errorf("decision logger: %w", err)
		}
	}

	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		a.close()
		return nil, err
	}

	opts := engine.Options{
		Interval:     cfg.Interval,
		Duration:     cfg.Duration,
		QuoteTimeout: cfg.QuoteTimeout,
	}
	if cfg.MarketHours {
		loc, err := cfg.Location()
		if err != nil {
			a.close()
			return nil, err
		}
		session := risk.DefaultSession(loc)
		opts.Session = &session
	}

	alloc := allocation.NewManager(a.ledger.InitialCapital(), allocation.DefaultPolicy(), a.quotes, a.log)
	settler := engine.NewSettler(a.ledger, alloc, risk.NewGate(a.log), sink, decimal.NewFromFloat(cfg.Commission), a.log)
	a.engine = engine.New(opts, strat, a.quotes, settler, a.ledger, a.decisions, a.log)
	return a, nil
}

func (a *app) save(ctx context.Context) error {
	if err := a.store.Save(ctx, a.ledger.Snapshot()); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	a.log.Debug().Str("path", a.cfg.StatePath).Msg("portfolio saved")
	return nil
}

func (a *app) close() {
	if err := a.decisions.Close(); err != nil {
		a.log.Error().Err(err).Msg("failed to close decision logger")
	}
	if err := a.closeStore(); err != nil {
		a.log.Error().Err(err).Msg("failed to close portfolio store")
	}
}

// openStore picks a store by file extension.
func openStore(path string) (ledger.Store, func() error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		db, err := database.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return database.NewSQLiteStore(db), db.Close, nil
	default:
		return ledger.NewFileStore(path), func() error { return nil }, nil
	}
}

func loadLedger(ctx context.Context, store ledger.Store, cfg config.Config) (*ledger.Ledger, error) {
	symbols := symbol.NewRegistry()
	snap, err := store.Load(ctx)
	if errors.Is(err, ledger.ErrNoSnapshot) {
		return ledger.New(cfg.AccountName, decimal.NewFromFloat(cfg.Capital), symbols), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio: %w", err)
	}
	return ledger.FromSnapshot(snap, symbols), nil
}

func newProvider(cfg config.Config, log zerolog.Logger) (md.Provider, error) {
	switch cfg.QuoteSource {
	case config.SourceAlpaca:
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return md.NewAlpacaProvider(md.AlpacaOptions{
			APIKey:         cfg.APIKey,
			APISecret:      cfg.APISecret,
			Feed:           cfg.Feed,
			MarketCaps:     cfg.MarketCaps,
			Location:       loc,
			RequestTimeout: cfg.QuoteTimeout,
		}, log), nil
	default:
		return md.LoadReplay(cfg.QuotesPath)
	}
}

func newSink(ctx context.Context, cfg config.Config, quotes md.Provider, log zerolog.Logger) (broker.Sink, error) {
	if cfg.Mode != config.ModePaper {
		return broker.NewSimulated(quotes), nil
	}
	client := broker.New(cfg.APIKey, cfg.APISecret, cfg.PaperBaseURL, log)
	if _, err := client.Account(ctx); err != nil {
		return nil, fmt.Errorf("paper account: %w", err)
	}
	return client, nil
}
