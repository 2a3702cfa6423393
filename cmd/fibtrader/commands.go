package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fibtrader/internal/engine"
	"fibtrader/internal/server"
	"fibtrader/internal/strategy"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.close()

			for _, ticker := range cfg.WatchList {
				if _, err := a.engine.Watch(ctx, ticker); err != nil && !errors.Is(err, engine.ErrAlreadyWatched) {
					a.log.Warn().Err(err).Str("symbol", ticker).Msg("configured symbol not watched")
				}
			}

			var srv *server.Server
			if cfg.ListenAddr != "" {
				srv = server.New(server.Config{
					Addr:    cfg.ListenAddr,
					Log:     a.log,
					Ledger:  a.ledger,
					Watcher: a.engine,
					Prices:  a.quotes.LastPrices,
				})
				go func() {
					if err := srv.Start(); err != nil {
						a.log.Error().Err(err).Msg("HTTP server stopped")
					}
				}()
			}

			a.log.Info().
				Str("account", a.ledger.AccountName()).
				Str("strategy", cfg.Strategy).
				Str("mode", string(cfg.Mode)).
				Int("watching", len(a.ledger.WatchList())).
				Msg("starting simulation")

			runErr := a.engine.Run(ctx)
			if errors.Is(runErr, context.Canceled) {
				a.log.Info().Msg("shutdown signal received")
				runErr = nil
			}

			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if srv != nil {
				if err := srv.Shutdown(saveCtx); err != nil {
					a.log.Error().Err(err).Msg("HTTP server shutdown failed")
				}
			}
			if err := a.save(saveCtx); err != nil {
				return err
			}
			a.log.Info().
				Str("funds", a.ledger.Funds().StringFixed(2)).
				Str("net_worth", a.ledger.NetWorth().StringFixed(2)).
				Str("percent_change", a.ledger.PercentChange().StringFixed(2)).
				Msg("simulation complete")
			return runErr
		},
	}
	cmd.Flags().DurationVar(&overrides.interval, "interval", 0, "pause between cycles")
	cmd.Flags().DurationVar(&overrides.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().StringVar(&overrides.listen, "listen", "", "serve the HTTP API on this address")
	cmd.Flags().StringVar(&overrides.decisionsPath, "decisions", "", "NDJSON decision log path")
	cmd.Flags().StringSliceVar(&overrides.watch, "watch", nil, "symbols to add to the watch list")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the watch list",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add SYMBOL...",
		Short: "Validate and add symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var failed error
				for _, ticker := range args {
					sym, err := a.engine.Watch(ctx, ticker)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", ticker, err)
						failed = errors.Join(failed, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", sym)
				}
				if err := a.save(ctx); err != nil {
					return err
				}
				return failed
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove SYMBOL...",
		Short: "Remove symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var failed error
				for _, ticker := range args {
					if err := a.engine.Unwatch(ctx, ticker); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", ticker, err)
						failed = errors.Join(failed, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", ticker)
				}
				if err := a.save(ctx); err != nil {
					return err
				}
				return failed
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the watch list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				for _, sym := range a.ledger.WatchList() {
					fmt.Fprintln(cmd.OutOrStdout(), sym)
				}
				return nil
			})
		},
	})
	return cmd
}

func portfolioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show funds, positions and trade history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				l := a.ledger
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Account:         %s\n", l.AccountName())
				fmt.Fprintf(out, "Initial capital: %s\n", l.InitialCapital().StringFixed(2))
				fmt.Fprintf(out, "Available funds: %s\n", l.Funds().StringFixed(2))
				fmt.Fprintf(out, "Net worth:       %s\n", l.NetWorth().StringFixed(2))
				fmt.Fprintf(out, "Change:          %s%%\n\n", l.PercentChange().StringFixed(2))

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SYMBOL\tSHARES\tAVG COST\tTIER")
				for _, p := range l.Positions() {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Symbol, p.Shares, p.AvgCost.StringFixed(2), p.Tier)
				}
				fmt.Fprintln(tw)
				fmt.Fprintln(tw, "TIME\tSIDE\tSYMBOL\tSHARES\tPRICE\tRESULT")
				for _, t := range l.Trades() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						t.ExecutedAt.Format(time.RFC3339), t.Side, t.Ticker, t.Shares,
						t.Price.StringFixed(2), t.Realized.StringFixed(2))
				}
				return tw.Flush()
			})
		},
	}
}

func tradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Place a manual market order",
	}
	for _, action := range []strategy.Action{strategy.Buy, strategy.Sell} {
		action := action
		name := "buy"
		if action == strategy.Sell {
			name = "sell"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   name + " SYMBOL SHARES",
			Short: "Manual " + name + " through the settlement gates",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				shares, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("shares: %w", err)
				}
				return withApp(cmd, func(ctx context.Context, a *app) error {
					outcome, err := a.engine.Trade(ctx, args[0], action, shares)
					if err != nil {
						return err
					}
					printOutcome(cmd, args[0], outcome)
					return a.save(ctx)
				})
			},
		})
	}
	return cmd
}

func liquidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "liquidate",
		Short: "Sell every open position",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				outcomes := a.engine.Liquidate(ctx)
				tickers := make([]string, 0, len(outcomes))
				for ticker := range outcomes {
					tickers = append(tickers, ticker)
				}
				sort.Strings(tickers)
				for _, ticker := range tickers {
					printOutcome(cmd, ticker, outcomes[ticker])
				}
				return a.save(ctx)
			})
		},
	}
}

// withApp wires an app without a decision log, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// One-off commands act immediately regardless of the session.
	cfg.MarketHours = false
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.Name() != "list" && cmd.Name() != "portfolio")
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func printOutcome(cmd *cobra.Command, ticker string, outcome engine.Outcome) {
	out := cmd.OutOrStdout()
	if outcome.Trade == nil {
		fmt.Fprintf(out, "%s: %s (%s)\n", ticker, outcome.Result, outcome.Reason)
		return
	}
	t := outcome.Trade
	fmt.Fprintf(out, "%s: %s %s %d @ %s\n", ticker, outcome.Result, t.Side, t.Shares, t.Price.StringFixed(2))
}

