package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"papertrader/config"
	"papertrader/internal/adapters/binanceclient"
	"papertrader/internal/adapters/logger"
	"papertrader/internal/adapters/simfeed"
	"papertrader/internal/adapters/sqlite"
	"papertrader/internal/ledger"
	"papertrader/internal/ports"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A paper-trading account simulator",
	Long: `Papertrader simulates a trading account against live or simulated prices.

It keeps a cash balance, open positions with volume-weighted average cost,
a full trade history with realized P&L, and an equity time series, all
persisted in a local SQLite database.

Subcommands operate one-shot on the same database the daemon uses:
  snapshot - Show the current account snapshot
  history  - List recent trades
  equity   - Print the equity series for a look-back range
  deposit  - Add cash to the account
  trade    - Execute a market buy or sell
  reset    - Restart the simulation with a fresh balance`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

var dbPathOverride string

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPathOverride, "db", "d", "", "path to the SQLite database (default from DB_PATH)")
}

// env bundles the pieces every subcommand needs.
type env struct {
	cfg    *config.Config
	logger ports.Logger
	repo   *sqlite.Repository
}

// openEnv loads configuration and opens the store. Callers must Close.
func openEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPathOverride != "" {
		cfg.DBPath = dbPathOverride
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &env{cfg: cfg, logger: appLogger, repo: repo}, nil
}

func (e *env) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Error(context.Background(), err, "Error closing database")
	}
}

// loadBook builds a ledger from persisted state, or a fresh one when the
// store is empty.
func (e *env) loadBook(ctx context.Context) (*ledger.Ledger, error) {
	book, err := ledger.New(ledger.Config{InitialCash: e.cfg.InitialCash})
	if err != nil {
		return nil, err
	}
	state, err := e.repo.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account state: %w", err)
	}
	if state != nil {
		book.Restore(state)
	}
	return book, nil
}

// saveBook persists the ledger state back to the store.
func (e *env) saveBook(ctx context.Context, book *ledger.Ledger) error {
	if err := e.repo.SaveState(ctx, book.State()); err != nil {
		return fmt.Errorf("persist account state: %w", err)
	}
	return nil
}

// priceSource returns a one-shot price source per the configured feed mode.
func (e *env) priceSource() (ports.PriceSource, error) {
	if e.cfg.FeedMode == config.FeedModeSim {
		return simfeed.New(simfeed.Config{
			Logger:      e.logger,
			Seed:        e.cfg.SimSeed,
			StartPrices: e.cfg.SimStartPrices(),
			Volatility:  e.cfg.Volatility,
		})
	}
	return binanceclient.New(binanceclient.Config{
		APIKey:     e.cfg.APIKey,
		SecretKey:  e.cfg.SecretKey,
		UseTestnet: e.cfg.IsTestnet,
		Logger:     e.logger,
	})
}
