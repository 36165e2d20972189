package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newTestLedger(t *testing.T, initialCash float64) *Ledger {
	t.Helper()
	l, err := New(Config{InitialCash: initialCash, Now: fixedClock()})
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		initialCash float64
		wantErr     error
	}{
		{name: "zero balance", initialCash: 0},
		{name: "positive balance", initialCash: 10000},
		{name: "negative balance rejected", initialCash: -1, wantErr: ports.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(Config{InitialCash: tt.initialCash})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, l)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.initialCash, l.Cash())
		})
	}
}

func TestDeposit(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		wantErr error
	}{
		{name: "valid amount", amount: 500},
		{name: "zero rejected", amount: 0, wantErr: ports.ErrInvalidAmount},
		{name: "negative rejected", amount: -100, wantErr: ports.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, 100)
			err := l.Deposit(tt.amount)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 100.0, l.Cash(), "rejected deposit must not change cash")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 100+tt.amount, l.Cash())
		})
	}
}

// Scenario A: deposit 10000, buy 1 ETH/USD at 3000.
func TestExecuteTrade_Buy(t *testing.T) {
	l := newTestLedger(t, 0)
	require.NoError(t, l.Deposit(10000))

	trade, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)
	require.NotNil(t, trade)

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, domain.Buy, trade.Side)
	assert.Equal(t, 3000.0, trade.Notional)
	assert.Zero(t, trade.RealizedPnL, "buys carry no realized P&L")

	assert.Equal(t, 7000.0, l.Cash())
	pos, ok := l.Position("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.Quantity)
	assert.Equal(t, 3000.0, pos.AvgCost)

	snap := l.Snapshot(map[string]float64{"ETH/USD": 3000})
	assert.Equal(t, 10000.0, snap.Equity)
}

// Scenario B: from state A, sell 1 ETH/USD at 3500.
func TestExecuteTrade_SellRealizesPnL(t *testing.T) {
	l := newTestLedger(t, 10000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)

	trade, err := l.ExecuteTrade("ETH/USD", domain.Sell, 1, 3500)
	require.NoError(t, err)

	assert.Equal(t, 10500.0, l.Cash())
	assert.Equal(t, 500.0, trade.RealizedPnL)
	assert.Equal(t, 500.0, l.RealizedPnL())

	_, ok := l.Position("ETH/USD")
	assert.False(t, ok, "selling the entire position must remove it")
}

// Scenario C: selling more than held is rejected and leaves state unchanged.
func TestExecuteTrade_InsufficientHoldings(t *testing.T) {
	l := newTestLedger(t, 10000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)

	trade, err := l.ExecuteTrade("ETH/USD", domain.Sell, 2, 3500)
	assert.Nil(t, trade)
	assert.ErrorIs(t, err, ports.ErrInsufficientHoldings)

	var holdErr *ports.InsufficientHoldingsError
	require.True(t, errors.As(err, &holdErr))
	assert.Equal(t, 2.0, holdErr.Required)
	assert.Equal(t, 1.0, holdErr.Available)

	assert.Equal(t, 7000.0, l.Cash())
	pos, ok := l.Position("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.Quantity)
	assert.Len(t, l.Trades(), 1)
}

// Scenario D: buying beyond available cash is rejected with the shortfall.
func TestExecuteTrade_InsufficientCash(t *testing.T) {
	l := newTestLedger(t, 0)
	require.NoError(t, l.Deposit(100))

	trade, err := l.ExecuteTrade("BTC/USD", domain.Buy, 1, 50000)
	assert.Nil(t, trade)
	assert.ErrorIs(t, err, ports.ErrInsufficientCash)

	var cashErr *ports.InsufficientCashError
	require.True(t, errors.As(err, &cashErr))
	assert.Equal(t, 50000.0, cashErr.Required)
	assert.Equal(t, 100.0, cashErr.Available)

	assert.Equal(t, 100.0, l.Cash())
	assert.Empty(t, l.Trades())
	assert.Empty(t, l.Positions())
}

func TestExecuteTrade_Validation(t *testing.T) {
	l := newTestLedger(t, 10000)

	tests := []struct {
		name     string
		symbol   string
		side     domain.OrderSide
		quantity float64
		price    float64
		wantErr  error
	}{
		{name: "empty symbol", symbol: "", side: domain.Buy, quantity: 1, price: 10, wantErr: ports.ErrInvalidRequest},
		{name: "unknown side", symbol: "ETH/USD", side: "HOLD", quantity: 1, price: 10, wantErr: ports.ErrInvalidRequest},
		{name: "zero quantity", symbol: "ETH/USD", side: domain.Buy, quantity: 0, price: 10, wantErr: ports.ErrInvalidQuantity},
		{name: "negative quantity", symbol: "ETH/USD", side: domain.Buy, quantity: -1, price: 10, wantErr: ports.ErrInvalidQuantity},
		{name: "zero price", symbol: "ETH/USD", side: domain.Buy, quantity: 1, price: 0, wantErr: ports.ErrPriceUnavailable},
		{name: "negative price", symbol: "ETH/USD", side: domain.Sell, quantity: 1, price: -5, wantErr: ports.ErrPriceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := l.ExecuteTrade(tt.symbol, tt.side, tt.quantity, tt.price)
			assert.Nil(t, trade)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 10000.0, l.Cash(), "rejected orders must leave the ledger unchanged")
	assert.Empty(t, l.Trades())
}

func TestExecuteTrade_AverageCostIsVolumeWeighted(t *testing.T) {
	l := newTestLedger(t, 100000)

	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 2, 3000)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3600)
	require.NoError(t, err)

	pos, ok := l.Position("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.Quantity)
	// (2*3000 + 1*3600) / 3
	assert.InDelta(t, 3200.0, pos.AvgCost, 1e-9)
}

func TestExecuteTrade_SellLeavesAverageCostUnchanged(t *testing.T) {
	l := newTestLedger(t, 100000)

	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 4, 3000)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("ETH/USD", domain.Sell, 1, 4000)
	require.NoError(t, err)

	pos, ok := l.Position("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.Quantity)
	assert.Equal(t, 3000.0, pos.AvgCost)
}

// Selling the exact remaining quantity after accumulated average-cost
// recomputation must not be rejected by floating-point residue.
func TestExecuteTrade_ExactBalanceSellTolerance(t *testing.T) {
	l := newTestLedger(t, 1000000)

	qty := 0.0
	for i := 0; i < 100; i++ {
		_, err := l.ExecuteTrade("BTC/USD", domain.Buy, 0.1, 50000+float64(i))
		require.NoError(t, err)
		qty += 0.1
	}

	_, err := l.ExecuteTrade("BTC/USD", domain.Sell, 10.0, 51000)
	require.NoError(t, err, "selling the full accumulated quantity must succeed")
	_, ok := l.Position("BTC/USD")
	assert.False(t, ok)
}

func TestExecuteTrade_ExactBalanceBuyTolerance(t *testing.T) {
	l := newTestLedger(t, 0)
	require.NoError(t, l.Deposit(300))

	// 3 * 100 consumes the entire balance.
	_, err := l.ExecuteTrade("SOL/USD", domain.Buy, 3, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.Cash(), 0.0, "cash may never go negative")
}

func TestSnapshot_PartialPrices(t *testing.T) {
	l := newTestLedger(t, 10000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("BTC/USD", domain.Buy, 0.1, 40000)
	require.NoError(t, err)

	// Only ETH has a known price: BTC is valued at its average cost and
	// contributes nothing to unrealized P&L.
	snap := l.Snapshot(map[string]float64{"ETH/USD": 3300})
	assert.InDelta(t, 3000.0, snap.Cash, 1e-9)
	assert.InDelta(t, 3300+4000, snap.PositionsValue, 1e-9)
	assert.InDelta(t, 300.0, snap.UnrealizedPnL, 1e-9)
	assert.InDelta(t, snap.Cash+snap.PositionsValue, snap.Equity, 1e-9)
}

func TestSnapshot_DoesNotMutate(t *testing.T) {
	l := newTestLedger(t, 5000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)

	first := l.Snapshot(map[string]float64{"ETH/USD": 3100})
	second := l.Snapshot(map[string]float64{"ETH/USD": 3100})
	assert.Equal(t, first, second)
}

func TestRealizedPnL_IgnoresBuysAndOpenPositions(t *testing.T) {
	l := newTestLedger(t, 100000)

	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 2, 3000)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("BTC/USD", domain.Buy, 1, 40000)
	require.NoError(t, err)
	assert.Zero(t, l.RealizedPnL())

	_, err = l.ExecuteTrade("ETH/USD", domain.Sell, 1, 3500)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("ETH/USD", domain.Sell, 1, 2800)
	require.NoError(t, err)

	// 500 profit + 200 loss; the open BTC position is irrelevant.
	assert.InDelta(t, 300.0, l.RealizedPnL(), 1e-9)
}

func TestReset(t *testing.T) {
	l := newTestLedger(t, 10000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 1, 3000)
	require.NoError(t, err)

	require.NoError(t, l.Reset(2500))
	snap := l.Snapshot(nil)
	assert.Equal(t, domain.AccountSnapshot{Cash: 2500, PositionsValue: 0, Equity: 2500, UnrealizedPnL: 0}, snap)
	assert.Empty(t, l.Trades())
	assert.Empty(t, l.Positions())

	// Idempotent.
	require.NoError(t, l.Reset(2500))
	assert.Equal(t, snap, l.Snapshot(nil))

	assert.ErrorIs(t, l.Reset(-1), ports.ErrInvalidAmount)
}

func TestRestoreAndState(t *testing.T) {
	l := newTestLedger(t, 10000)
	_, err := l.ExecuteTrade("ETH/USD", domain.Buy, 2, 3000)
	require.NoError(t, err)
	_, err = l.ExecuteTrade("ETH/USD", domain.Sell, 1, 3500)
	require.NoError(t, err)

	state := l.State()

	restored := newTestLedger(t, 0)
	restored.Restore(state)

	assert.Equal(t, l.Cash(), restored.Cash())
	assert.Equal(t, l.Positions(), restored.Positions())
	assert.Equal(t, l.Trades(), restored.Trades())
	assert.Equal(t, l.RealizedPnL(), restored.RealizedPnL())
}

func TestCashNeverNegative(t *testing.T) {
	l := newTestLedger(t, 1000)

	// A mix of valid and invalid operations; cash must stay non-negative throughout.
	ops := []func() error{
		func() error { _, err := l.ExecuteTrade("ETH/USD", domain.Buy, 0.2, 3000); return err },
		func() error { _, err := l.ExecuteTrade("ETH/USD", domain.Buy, 10, 3000); return err },
		func() error { _, err := l.ExecuteTrade("ETH/USD", domain.Sell, 0.1, 2000); return err },
		func() error { return l.Deposit(50) },
		func() error { _, err := l.ExecuteTrade("ETH/USD", domain.Sell, 5, 2000); return err },
	}
	for _, op := range ops {
		_ = op()
		assert.GreaterOrEqual(t, l.Cash(), 0.0)
	}
}
