// Package ledger implements the authoritative in-memory account record:
// cash balance, open positions with volume-weighted average cost, and the
// append-only trade history. The ledger is the only component allowed to
// mutate any of them; everything else consumes derived snapshots.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"papertrader/internal/domain"
	"papertrader/internal/id"
	"papertrader/internal/ports"
)

const (
	// relEpsilon absorbs rounding drift from repeated average-cost updates so
	// an exact-balance buy or an entire-position sell is not spuriously
	// rejected by the sufficiency checks.
	relEpsilon = 1e-9

	// zeroQtyEpsilon is the quantity below which a position counts as closed
	// and is removed from the account.
	zeroQtyEpsilon = 1e-9
)

// Ledger holds the account state. Mutating methods validate fully before
// touching any state, so a rejected call never leaves a partial mutation.
// All methods are serialized by an internal mutex; one Ledger instance is one
// logical account, and independent accounts are independent instances.
type Ledger struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*domain.Position
	trades    []*domain.Trade
	now       func() time.Time
}

// Config holds construction parameters for a Ledger.
type Config struct {
	InitialCash float64          // Starting cash balance; must not be negative
	Now         func() time.Time // Clock used for trade timestamps; defaults to time.Now
}

// New creates a Ledger with the given starting balance.
func New(cfg Config) (*Ledger, error) {
	if cfg.InitialCash < 0 || !isFinite(cfg.InitialCash) {
		return nil, fmt.Errorf("initial cash %v: %w", cfg.InitialCash, ports.ErrInvalidAmount)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		cash:      cfg.InitialCash,
		positions: make(map[string]*domain.Position),
		trades:    make([]*domain.Trade, 0),
		now:       now,
	}, nil
}

// Restore replaces the ledger contents with previously persisted state.
// Positions with non-positive quantity are dropped rather than restored.
func (l *Ledger) Restore(state *domain.AccountState) {
	if state == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = state.Cash
	l.positions = make(map[string]*domain.Position, len(state.Positions))
	for _, p := range state.Positions {
		if p.Quantity <= zeroQtyEpsilon {
			continue
		}
		pos := p
		l.positions[p.Symbol] = &pos
	}
	l.trades = make([]*domain.Trade, 0, len(state.Trades))
	for _, t := range state.Trades {
		trade := t
		l.trades = append(l.trades, &trade)
	}
}

// Deposit adds cash to the account.
func (l *Ledger) Deposit(amount float64) error {
	if amount <= 0 || !isFinite(amount) {
		return fmt.Errorf("deposit of %v: %w", amount, ports.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash += amount
	return nil
}

// ExecuteTrade executes a buy or sell of the given quantity at the given
// price and appends exactly one Trade record for the fill. The price must be
// a positive quote resolved by the caller before the call; the ledger never
// performs price lookups itself.
//
// Validation order: quantity, then price, then sufficiency. Errors carry the
// shortfall amounts (required vs. available) for user display.
func (l *Ledger) ExecuteTrade(symbol string, side domain.OrderSide, quantity, price float64) (*domain.Trade, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", ports.ErrInvalidRequest)
	}
	if !side.IsValid() {
		return nil, fmt.Errorf("order side %q: %w", side, ports.ErrInvalidRequest)
	}
	if quantity <= 0 || !isFinite(quantity) {
		return nil, fmt.Errorf("quantity %v: %w", quantity, ports.ErrInvalidQuantity)
	}
	if price <= 0 || !isFinite(price) {
		return nil, fmt.Errorf("price %v for %s: %w", price, symbol, ports.ErrPriceUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := quantity * price
	trade := &domain.Trade{
		ID:         id.New(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Notional:   notional,
		ExecutedAt: l.now().UTC(),
	}

	switch side {
	case domain.Buy:
		if exceeds(notional, l.cash) {
			return nil, &ports.InsufficientCashError{Required: notional, Available: l.cash}
		}
		l.cash -= notional
		if l.cash < 0 {
			// Epsilon-tolerated exact-balance buy; clamp rounding residue.
			l.cash = 0
		}
		if pos, ok := l.positions[symbol]; ok {
			newQty := pos.Quantity + quantity
			pos.AvgCost = (pos.Quantity*pos.AvgCost + notional) / newQty
			pos.Quantity = newQty
		} else {
			l.positions[symbol] = &domain.Position{Symbol: symbol, Quantity: quantity, AvgCost: price}
		}

	case domain.Sell:
		pos := l.positions[symbol]
		var held float64
		if pos != nil {
			held = pos.Quantity
		}
		if exceeds(quantity, held) {
			return nil, &ports.InsufficientHoldingsError{Symbol: symbol, Required: quantity, Available: held}
		}
		l.cash += notional
		trade.RealizedPnL = (price - pos.AvgCost) * quantity
		// Average cost is left untouched by a sell; only buys move it.
		pos.Quantity -= quantity
		if pos.Quantity <= zeroQtyEpsilon {
			delete(l.positions, symbol)
		}
	}

	l.trades = append(l.trades, trade)
	return trade, nil
}

// Snapshot computes a read-only view of the account against the given map of
// most-recently-known prices, keyed by display symbol. The map may be partial
// or stale: a position with no known price is valued at its average cost and
// contributes nothing to unrealized P&L. Snapshot never fails.
func (l *Ledger) Snapshot(latestPrices map[string]float64) domain.AccountSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := domain.AccountSnapshot{Cash: l.cash}
	for sym, pos := range l.positions {
		if price, ok := latestPrices[sym]; ok {
			snap.PositionsValue += pos.MarketValue(price)
			snap.UnrealizedPnL += pos.UnrealizedPnL(price)
		} else {
			snap.PositionsValue += pos.MarketValue(pos.AvgCost)
		}
	}
	snap.Equity = snap.Cash + snap.PositionsValue
	return snap
}

// RealizedPnL returns the sum of realized P&L across all SELL trades in the
// history. BUY trades and open positions never affect it.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, t := range l.trades {
		if t.Side == domain.Sell {
			total += t.RealizedPnL
		}
	}
	return total
}

// Reset clears positions and trade history and sets cash to initialCash.
// Explicit and idempotent; used to restart the simulation.
func (l *Ledger) Reset(initialCash float64) error {
	if initialCash < 0 || !isFinite(initialCash) {
		return fmt.Errorf("initial cash %v: %w", initialCash, ports.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = initialCash
	l.positions = make(map[string]*domain.Position)
	l.trades = make([]*domain.Trade, 0)
	return nil
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns a copy of the open position for the symbol, if any.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions, sorted by symbol.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sortPositions(out)
	return out
}

// Trades returns copies of the trade history, oldest first.
func (l *Ledger) Trades() []domain.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Trade, 0, len(l.trades))
	for _, t := range l.trades {
		out = append(out, *t)
	}
	return out
}

// State returns a serializable copy of the full account state for persistence.
func (l *Ledger) State() *domain.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := &domain.AccountState{
		Cash:      l.cash,
		Positions: make([]domain.Position, 0, len(l.positions)),
		Trades:    make([]domain.Trade, 0, len(l.trades)),
	}
	for _, pos := range l.positions {
		state.Positions = append(state.Positions, *pos)
	}
	sortPositions(state.Positions)
	for _, t := range l.trades {
		state.Trades = append(state.Trades, *t)
	}
	return state
}

// exceeds reports whether required is greater than available beyond the
// relative epsilon tolerance.
func exceeds(required, available float64) bool {
	tolerance := relEpsilon * math.Max(math.Abs(required), math.Abs(available))
	return required > available+tolerance
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sortPositions(positions []domain.Position) {
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
}
