package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"papertrader/internal/domain"
	"papertrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.AccountRepository and ports.EquityRepository
// using SQLite. One store holds exactly one account.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/papertrader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode keeps readers (CLI) usable while the daemon writes
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS account (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cash REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		symbol TEXT PRIMARY KEY,
		quantity REAL NOT NULL,
		avg_cost REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		notional REAL NOT NULL,
		realized_pnl REAL NOT NULL DEFAULT 0,
		executed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equity_history (
		at TIMESTAMP NOT NULL,
		equity REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades (executed_at);
	CREATE INDEX IF NOT EXISTS idx_equity_history_at ON equity_history (at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- AccountRepository Implementation ---

// SaveState persists cash and open positions as one atomic replacement.
// The Trades field of the state is ignored; trades are written via AppendTrade.
func (r *Repository) SaveState(ctx context.Context, state *domain.AccountState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account (id, cash, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, updated_at = excluded.updated_at`,
		state.Cash, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert account row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("failed to clear positions: %w", err)
	}
	for _, pos := range state.Positions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO positions (symbol, quantity, avg_cost) VALUES (?, ?, ?)`,
			pos.Symbol, pos.Quantity, pos.AvgCost); err != nil {
			return fmt.Errorf("failed to insert position for symbol %s: %w", pos.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save transaction: %w", err)
	}
	r.logger.Debug(ctx, "Account state saved", map[string]interface{}{"cash": state.Cash, "positions": len(state.Positions)})
	return nil
}

// LoadState retrieves the persisted account, including the full trade history
// in chronological order. Returns nil, nil when no account has been saved yet.
func (r *Repository) LoadState(ctx context.Context) (*domain.AccountState, error) {
	state := &domain.AccountState{}

	err := r.db.QueryRowContext(ctx, `SELECT cash FROM account WHERE id = 1`).Scan(&state.Cash)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Debug(ctx, "No persisted account found")
		return nil, nil // Not an error, just a fresh store
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account row: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT symbol, quantity, avg_cost FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pos domain.Position
		if err := rows.Scan(&pos.Symbol, &pos.Quantity, &pos.AvgCost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		state.Positions = append(state.Positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}

	tradeRows, err := r.db.QueryContext(ctx,
		`SELECT id, symbol, side, quantity, price, notional, realized_pnl, executed_at
		 FROM trades ORDER BY executed_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade history: %w", err)
	}
	defer tradeRows.Close()
	for tradeRows.Next() {
		trade, err := scanTrade(tradeRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during LoadState: %w", err)
		}
		state.Trades = append(state.Trades, *trade)
	}
	if err := tradeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}

	return state, nil
}

// AppendTrade saves one executed trade record.
func (r *Repository) AppendTrade(ctx context.Context, trade *domain.Trade) error {
	const query = `
	INSERT INTO trades (id, symbol, side, quantity, price, notional, realized_pnl, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		trade.ID, trade.Symbol, string(trade.Side), trade.Quantity, trade.Price,
		trade.Notional, trade.RealizedPnL, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s for symbol %s: %w", trade.ID, trade.Symbol, err)
	}
	r.logger.Debug(ctx, "Trade appended", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol, "side": trade.Side})
	return nil
}

// FindRecentTrades retrieves the most recent trades, newest first, up to a
// limit. A non-positive limit returns the full history.
func (r *Repository) FindRecentTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, side, quantity, price, notional, realized_pnl, executed_at
	FROM trades ORDER BY executed_at DESC, id DESC LIMIT ?`

	if limit <= 0 {
		limit = -1 // SQLite treats a negative limit as unlimited
	}
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade during FindRecentTrades: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// Reset clears positions, trade history and equity history, and persists the
// given starting cash balance.
func (r *Repository) Reset(ctx context.Context, initialCash float64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"positions", "trades", "equity_history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account (id, cash, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET cash = excluded.cash, updated_at = excluded.updated_at`,
		initialCash, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to reset account row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}
	r.logger.Info(ctx, "Account store reset", map[string]interface{}{"initialCash": initialCash})
	return nil
}

// --- EquityRepository Implementation ---

// AppendEquityPoint saves one equity sample.
func (r *Repository) AppendEquityPoint(ctx context.Context, p domain.EquityPoint) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO equity_history (at, equity) VALUES (?, ?)`, p.At, p.Equity)
	if err != nil {
		return fmt.Errorf("failed to insert equity point: %w", err)
	}
	return nil
}

// FindEquitySince retrieves samples at or after the given time, oldest first.
func (r *Repository) FindEquitySince(ctx context.Context, since time.Time) ([]domain.EquityPoint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT at, equity FROM equity_history WHERE at >= ? ORDER BY at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity history: %w", err)
	}
	defer rows.Close()

	points := make([]domain.EquityPoint, 0)
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.At, &p.Equity); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity rows: %w", err)
	}
	return points, nil
}

// PruneEquityBefore deletes samples older than the cutoff.
func (r *Repository) PruneEquityBefore(ctx context.Context, cutoff time.Time) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM equity_history WHERE at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune equity history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		r.logger.Debug(ctx, "Pruned equity history", map[string]interface{}{"removed": n})
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side string
	err := s.Scan(&t.ID, &t.Symbol, &side, &t.Quantity, &t.Price, &t.Notional, &t.RealizedPnL, &t.ExecutedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.OrderSide(side)
	return t, nil
}
