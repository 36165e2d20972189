package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/config"
	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockPriceSource struct {
	prices    map[string]float64
	priceErr  error
	pricesErr error
	getCalls  int
}

func (m *mockPriceSource) GetPrice(ctx context.Context, symbol string) (float64, error) {
	m.getCalls++
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	price, ok := m.prices[symbol]
	if !ok {
		return 0, ports.ErrPriceUnavailable
	}
	return price, nil
}

func (m *mockPriceSource) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if m.pricesErr != nil {
		return nil, m.pricesErr
	}
	out := make(map[string]float64)
	for _, sym := range symbols {
		if price, ok := m.prices[sym]; ok {
			out[sym] = price
		}
	}
	return out, nil
}

func (m *mockPriceSource) Ping(ctx context.Context) error { return nil }

type mockAccountRepo struct {
	state        *domain.AccountState
	savedStates  []*domain.AccountState
	trades       []*domain.Trade
	saveErr      error
	appendErr    error
	resetCalls   int
	resetInitial float64
}

func (m *mockAccountRepo) SaveState(ctx context.Context, state *domain.AccountState) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.savedStates = append(m.savedStates, state)
	return nil
}

func (m *mockAccountRepo) LoadState(ctx context.Context) (*domain.AccountState, error) {
	return m.state, nil
}

func (m *mockAccountRepo) AppendTrade(ctx context.Context, trade *domain.Trade) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.trades = append(m.trades, trade)
	return nil
}

func (m *mockAccountRepo) FindRecentTrades(ctx context.Context, limit int) ([]*domain.Trade, error) {
	return m.trades, nil
}

func (m *mockAccountRepo) Reset(ctx context.Context, initialCash float64) error {
	m.resetCalls++
	m.resetInitial = initialCash
	m.savedStates = nil
	m.trades = nil
	return nil
}

type mockEquityRepo struct {
	points []domain.EquityPoint
}

func (m *mockEquityRepo) AppendEquityPoint(ctx context.Context, point domain.EquityPoint) error {
	m.points = append(m.points, point)
	return nil
}

func (m *mockEquityRepo) FindEquitySince(ctx context.Context, since time.Time) ([]domain.EquityPoint, error) {
	return m.points, nil
}

func (m *mockEquityRepo) PruneEquityBefore(ctx context.Context, cutoff time.Time) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		FeedMode:    config.FeedModeSim,
		InitialCash: 10000,
		Watchlist: []config.WatchSymbol{
			{Symbol: "BTC/USD", Exchange: "BTCUSDT", SimStart: 60000},
			{Symbol: "ETH/USD", Exchange: "ETHUSDT", SimStart: 3000},
		},
		PriceRefreshInterval: 5 * time.Second,
		EquitySampleInterval: 30 * time.Second,
		QuoteMaxAge:          time.Minute,
		EquityMaxPoints:      128,
		EquityMaxAge:         30 * 24 * time.Hour,
	}
}

func newTestService(t *testing.T, prices *mockPriceSource, repo *mockAccountRepo) *PaperTradingService {
	t.Helper()
	svc, err := NewPaperTradingService(testConfig(), &mockLogger{}, prices, nil, repo, &mockEquityRepo{})
	require.NoError(t, err)
	return svc
}

func TestNewPaperTradingService_Validation(t *testing.T) {
	cfg := testConfig()
	logger := &mockLogger{}
	prices := &mockPriceSource{}
	repo := &mockAccountRepo{}

	_, err := NewPaperTradingService(nil, logger, prices, nil, repo, nil)
	assert.Error(t, err)

	_, err = NewPaperTradingService(cfg, nil, prices, nil, repo, nil)
	assert.Error(t, err)

	_, err = NewPaperTradingService(cfg, logger, nil, nil, repo, nil)
	assert.Error(t, err)

	_, err = NewPaperTradingService(cfg, logger, prices, nil, nil, nil)
	assert.Error(t, err)

	empty := testConfig()
	empty.Watchlist = nil
	_, err = NewPaperTradingService(empty, logger, prices, nil, repo, nil)
	assert.Error(t, err)

	svc, err := NewPaperTradingService(cfg, logger, prices, nil, repo, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestSubmitTrade_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}}
	repo := &mockAccountRepo{}
	svc := newTestService(t, prices, repo)

	trade, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 2)
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, "ETH/USD", trade.Symbol)
	assert.Equal(t, domain.Buy, trade.Side)
	assert.Equal(t, 6000.0, trade.Notional)
	assert.NotEmpty(t, trade.ID)

	// Trade and state were persisted.
	require.Len(t, repo.trades, 1)
	require.NotEmpty(t, repo.savedStates)
	last := repo.savedStates[len(repo.savedStates)-1]
	assert.InDelta(t, 4000, last.Cash, 1e-9)
	require.Len(t, last.Positions, 1)
	assert.Equal(t, "ETH/USD", last.Positions[0].Symbol)

	// Sell one at a higher price and realize the gain.
	prices.prices["ETHUSDT"] = 3500
	svc.quotes = map[string]domain.Quote{} // Force a fresh lookup
	sell, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Sell, 1)
	require.NoError(t, err)
	assert.InDelta(t, 500, sell.RealizedPnL, 1e-9)
	assert.InDelta(t, 500, svc.RealizedPnL(), 1e-9)
}

func TestSubmitTrade_UnknownSymbol(t *testing.T) {
	prices := &mockPriceSource{prices: map[string]float64{"BTCUSDT": 50000}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	_, err := svc.SubmitTrade(context.Background(), "DOGE/USD", domain.Buy, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUnknownSymbol))
}

func TestSubmitTrade_PriceUnavailable(t *testing.T) {
	prices := &mockPriceSource{priceErr: ports.ErrFeedUnavailable}
	repo := &mockAccountRepo{}
	svc := newTestService(t, prices, repo)

	_, err := svc.SubmitTrade(context.Background(), "BTC/USD", domain.Buy, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrPriceUnavailable))
	assert.Empty(t, repo.trades, "no trade is persisted when pricing fails")
}

func TestSubmitTrade_RejectionIsNotPersisted(t *testing.T) {
	prices := &mockPriceSource{prices: map[string]float64{"BTCUSDT": 50000}}
	repo := &mockAccountRepo{}
	svc := newTestService(t, prices, repo)

	// 1 BTC at 50000 exceeds the 10000 starting balance.
	_, err := svc.SubmitTrade(context.Background(), "BTC/USD", domain.Buy, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInsufficientCash))
	assert.Empty(t, repo.trades)
	assert.InDelta(t, 10000, svc.Snapshot().Cash, 1e-9)
}

func TestSubmitTrade_UsesFreshCachedQuote(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	svc.refreshPrices(ctx)
	prices.priceErr = ports.ErrFeedUnavailable // Direct lookups would now fail

	trade, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 1)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, trade.Price)
	assert.Zero(t, prices.getCalls, "a fresh cached quote avoids the direct lookup")
}

func TestSubmitTrade_StaleQuoteForcesLookup(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	svc.quotes["ETH/USD"] = domain.Quote{
		Symbol: "ETHUSDT",
		Price:  2000,
		At:     time.Now().Add(-10 * time.Minute),
	}

	trade, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 1)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, trade.Price, "stale cache entries are bypassed")
	assert.Equal(t, 1, prices.getCalls)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	repo := &mockAccountRepo{}
	svc := newTestService(t, &mockPriceSource{}, repo)

	require.NoError(t, svc.Deposit(ctx, 2500))
	assert.InDelta(t, 12500, svc.Snapshot().Cash, 1e-9)
	require.NotEmpty(t, repo.savedStates)
	assert.InDelta(t, 12500, repo.savedStates[len(repo.savedStates)-1].Cash, 1e-9)

	err := svc.Deposit(ctx, -5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidAmount))
}

func TestResetAccount(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000}}
	repo := &mockAccountRepo{}
	svc := newTestService(t, prices, repo)

	_, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 1)
	require.NoError(t, err)

	require.NoError(t, svc.ResetAccount(ctx, 5000))
	snap := svc.Snapshot()
	assert.InDelta(t, 5000, snap.Cash, 1e-9)
	assert.Empty(t, svc.Positions())
	assert.Zero(t, svc.RealizedPnL())
	assert.Equal(t, 1, repo.resetCalls)
	assert.Equal(t, 5000.0, repo.resetInitial)

	// The equity series restarts from the reset sample.
	points, err := svc.EquityHistory("all")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 5000, points[0].Equity, 1e-9)
}

func TestSnapshot_UsesCachedPrices(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	_, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 2)
	require.NoError(t, err)

	prices.prices["ETHUSDT"] = 3250
	svc.refreshPrices(ctx)

	snap := svc.Snapshot()
	assert.InDelta(t, 4000, snap.Cash, 1e-9)
	assert.InDelta(t, 6500, snap.PositionsValue, 1e-9)
	assert.InDelta(t, 10500, snap.Equity, 1e-9)
	assert.InDelta(t, 500, snap.UnrealizedPnL, 1e-9)
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000, "BTCUSDT": 100}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	_, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 1)
	require.NoError(t, err)
	_, err = svc.SubmitTrade(ctx, "BTC/USD", domain.Buy, 2)
	require.NoError(t, err)
	_, err = svc.SubmitTrade(ctx, "BTC/USD", domain.Sell, 1)
	require.NoError(t, err)

	all := svc.History(0)
	require.Len(t, all, 3)
	assert.Equal(t, domain.Sell, all[0].Side)
	assert.Equal(t, "ETH/USD", all[2].Symbol)

	limited := svc.History(2)
	require.Len(t, limited, 2)
	assert.Equal(t, all[0].ID, limited[0].ID)
}

func TestOnChange_NotifiesListeners(t *testing.T) {
	ctx := context.Background()
	prices := &mockPriceSource{prices: map[string]float64{"ETHUSDT": 3000}}
	svc := newTestService(t, prices, &mockAccountRepo{})

	var snaps []domain.AccountSnapshot
	var trades []*domain.Trade
	svc.OnChange(func(snap domain.AccountSnapshot, trade *domain.Trade) {
		snaps = append(snaps, snap)
		trades = append(trades, trade)
	})

	_, err := svc.SubmitTrade(ctx, "ETH/USD", domain.Buy, 1)
	require.NoError(t, err)
	require.NoError(t, svc.Deposit(ctx, 100))

	require.Len(t, snaps, 2)
	require.NotNil(t, trades[0], "trade notifications carry the executed trade")
	assert.Nil(t, trades[1], "deposit notifications carry no trade")
	assert.InDelta(t, 7100, snaps[1].Cash, 1e-9)
}

func TestHandleQuote_IgnoresUnknownSymbols(t *testing.T) {
	svc := newTestService(t, &mockPriceSource{}, &mockAccountRepo{})

	svc.handleQuote(domain.Quote{Symbol: "ETHUSDT", Price: 3100, At: time.Now()})
	svc.handleQuote(domain.Quote{Symbol: "XRPUSDT", Price: 0.5, At: time.Now()})

	latest := svc.latestPrices()
	require.Len(t, latest, 1)
	assert.Equal(t, 3100.0, latest["ETH/USD"])
}

func TestEquityHistory_UnknownRange(t *testing.T) {
	svc := newTestService(t, &mockPriceSource{}, &mockAccountRepo{})
	_, err := svc.EquityHistory("1y")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidRequest))
}
