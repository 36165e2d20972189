package ports

import (
	"context"
	"time"

	"papertrader/internal/domain"
)

// AccountRepository defines the interface for persisting the account state.
// There is exactly one account per store; the state record is additive-schema
// and carries no versioning.
type AccountRepository interface {
	// SaveState persists cash and open positions as one atomic replacement.
	// Trades are append-only and are written via AppendTrade, not here;
	// the Trades field of the given state is ignored.
	SaveState(ctx context.Context, state *domain.AccountState) error

	// LoadState retrieves the persisted account, including the full trade
	// history in chronological order. Returns nil, nil when no account has
	// been saved yet.
	LoadState(ctx context.Context) (*domain.AccountState, error)

	// AppendTrade saves one executed trade record.
	AppendTrade(ctx context.Context, trade *domain.Trade) error

	// FindRecentTrades retrieves the most recent trades, newest first, up to a limit.
	FindRecentTrades(ctx context.Context, limit int) ([]*domain.Trade, error)

	// Reset clears positions, trade history and equity history, and persists
	// the given starting cash balance. Idempotent.
	Reset(ctx context.Context, initialCash float64) error
}

// EquityRepository defines the interface for the persisted equity time series.
type EquityRepository interface {
	// AppendEquityPoint saves one equity sample.
	AppendEquityPoint(ctx context.Context, p domain.EquityPoint) error
	// FindEquitySince retrieves samples at or after the given time, oldest first.
	FindEquitySince(ctx context.Context, since time.Time) ([]domain.EquityPoint, error)
	// PruneEquityBefore deletes samples older than the cutoff to bound storage.
	PruneEquityBefore(ctx context.Context, cutoff time.Time) error
}
