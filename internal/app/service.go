package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"papertrader/config"
	"papertrader/internal/domain"
	"papertrader/internal/equity"
	"papertrader/internal/ledger"
	"papertrader/internal/ports"
)

// ChangeListener is notified after every account mutation with the fresh
// snapshot and, when the mutation was a trade, the executed trade. This is
// how a presentation layer re-renders without polling the core.
type ChangeListener func(snap domain.AccountSnapshot, trade *domain.Trade)

// PaperTradingService orchestrates the paper-trading account: it keeps the
// quote cache warm from the price source, runs the equity sampler, executes
// user trade requests against the ledger and persists every mutation.
type PaperTradingService struct {
	cfg        *config.Config
	logger     ports.Logger
	prices     ports.PriceSource
	streamer   ports.QuoteStreamer // Optional; nil means poll-only
	repo       ports.AccountRepository
	equityRepo ports.EquityRepository // Optional; nil disables equity persistence
	book       *ledger.Ledger
	recorder   *equity.Recorder
	now        func() time.Time

	// State fields
	mu        sync.Mutex // Protects quotes and listeners
	quotes    map[string]domain.Quote // Latest quote per display symbol
	listeners []ChangeListener
}

// NewPaperTradingService creates a new application service instance.
// streamer and equityRepo may be nil.
func NewPaperTradingService(
	cfg *config.Config,
	logger ports.Logger,
	prices ports.PriceSource,
	streamer ports.QuoteStreamer,
	repo ports.AccountRepository,
	equityRepo ports.EquityRepository,
) (*PaperTradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || prices == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for PaperTradingService")
	}
	if len(cfg.Watchlist) == 0 {
		return nil, fmt.Errorf("configuration watchlist must not be empty")
	}

	book, err := ledger.New(ledger.Config{InitialCash: cfg.InitialCash})
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}
	recorder := equity.New(equity.Config{
		MaxPoints: cfg.EquityMaxPoints,
		MaxAge:    cfg.EquityMaxAge,
	})

	return &PaperTradingService{
		cfg:        cfg,
		logger:     logger,
		prices:     prices,
		streamer:   streamer,
		repo:       repo,
		equityRepo: equityRepo,
		book:       book,
		recorder:   recorder,
		now:        time.Now,
		quotes:     make(map[string]domain.Quote),
	}, nil
}

// Start runs the service until the context is cancelled or a shutdown signal
// arrives. It restores persisted state, warms the quote cache and then drives
// the price-refresh and equity-sampling tickers. The two timers are
// independent; each reads whatever state is current when it fires.
func (s *PaperTradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting paper trading service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Restore persisted account state, if any.
	state, err := s.repo.LoadState(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load persisted account state")
		return fmt.Errorf("failed to load account state: %w", err)
	}
	if state != nil {
		s.book.Restore(state)
		s.logger.Info(ctx, "Restored persisted account", map[string]interface{}{
			"cash":      state.Cash,
			"positions": len(state.Positions),
			"trades":    len(state.Trades),
		})
	} else {
		if err := s.repo.SaveState(ctx, s.book.State()); err != nil {
			s.logger.Error(ctx, err, "Failed to persist initial account state")
			return fmt.Errorf("failed to persist initial state: %w", err)
		}
		s.logger.Info(ctx, "No persisted account found, starting fresh", map[string]interface{}{"initialCash": s.cfg.InitialCash})
	}

	// 2. Reload the retained equity series so charts survive restarts.
	if s.equityRepo != nil {
		since := s.now().Add(-s.cfg.EquityMaxAge)
		points, err := s.equityRepo.FindEquitySince(ctx, since)
		if err != nil {
			// Not fatal: the series rebuilds from new samples.
			s.logger.Warn(ctx, "Failed to reload equity history", map[string]interface{}{"error": err.Error()})
		} else {
			for _, p := range points {
				s.recorder.Record(p.At, p.Equity)
			}
			s.logger.Info(ctx, "Reloaded equity history", map[string]interface{}{"points": len(points)})
		}
	}

	// 3. Warm the quote cache and take the first equity sample.
	s.refreshPrices(ctx)
	s.sampleEquity(ctx)

	// 4. Start the streaming feed when one is configured.
	var wsDoneCh, wsStopCh chan struct{}
	if s.streamer != nil {
		wsDoneCh, wsStopCh, err = s.streamer.StreamQuotes(ctx, s.cfg.ExchangeSymbols(), s.handleQuote, s.handleFeedError)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to start quote stream")
			return fmt.Errorf("failed to start quote stream: %w", err)
		}
		s.logger.Info(ctx, "Quote stream started", map[string]interface{}{"symbols": len(s.cfg.Watchlist)})
	}

	// --- Main Loop ---
	refresh := time.NewTicker(s.cfg.PriceRefreshInterval)
	defer refresh.Stop()
	sample := time.NewTicker(s.cfg.EquitySampleInterval)
	defer sample.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Context cancelled, shutting down...")
			s.shutdown(wsDoneCh, wsStopCh)
			return nil
		case <-refresh.C:
			s.refreshPrices(ctx)
		case <-sample.C:
			s.sampleEquity(ctx)
		}
	}
}

// shutdown persists final state and stops the stream, bounded by a timeout.
func (s *PaperTradingService) shutdown(wsDoneCh, wsStopCh chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.SaveState(ctx, s.book.State()); err != nil {
		s.logger.Error(ctx, err, "Failed to persist account state on shutdown")
	}

	if wsStopCh != nil {
		select {
		case wsStopCh <- struct{}{}:
		default:
		}
		select {
		case <-wsDoneCh:
			s.logger.Info(ctx, "Quote stream shut down gracefully")
		case <-time.After(5 * time.Second):
			s.logger.Warn(ctx, "Timeout waiting for quote stream to shut down")
		}
	}
	s.logger.Info(ctx, "Paper trading service stopped.")
}

// refreshPrices polls the price source for the whole watchlist and updates
// the quote cache. Partial results update what they can; a failed poll keeps
// the previous quotes so snapshots degrade instead of failing.
func (s *PaperTradingService) refreshPrices(ctx context.Context) {
	prices, err := s.prices.GetPrices(ctx, s.cfg.ExchangeSymbols())
	if err != nil {
		s.logger.Warn(ctx, "Price refresh failed, keeping stale quotes", map[string]interface{}{"error": err.Error()})
		return
	}

	at := s.now().UTC()
	s.mu.Lock()
	for exchangeSym, price := range prices {
		display, ok := s.cfg.DisplayFor(exchangeSym)
		if !ok {
			continue
		}
		s.quotes[display] = domain.Quote{Symbol: exchangeSym, Price: price, At: at}
	}
	s.mu.Unlock()

	s.logger.Debug(ctx, "Quote cache refreshed", map[string]interface{}{"resolved": len(prices), "requested": len(s.cfg.Watchlist)})
}

// handleQuote ingests one pushed quote from the streaming feed.
func (s *PaperTradingService) handleQuote(q domain.Quote) {
	display, ok := s.cfg.DisplayFor(q.Symbol)
	if !ok {
		return
	}
	s.mu.Lock()
	s.quotes[display] = q
	s.mu.Unlock()
}

// handleFeedError handles errors reported by the streaming feed. Reconnection
// is the adapter's job; the poll ticker keeps quotes flowing meanwhile.
func (s *PaperTradingService) handleFeedError(err error) {
	s.logger.Warn(context.Background(), "Quote stream error reported", map[string]interface{}{"error": err.Error()})
}

// latestPrices returns the cached prices keyed by display symbol. Staleness
// is not filtered here: snapshots prefer a stale price over none.
func (s *PaperTradingService) latestPrices() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64, len(s.quotes))
	for display, q := range s.quotes {
		out[display] = q.Price
	}
	return out
}

// priceFor resolves an execution price for one display symbol: a fresh cached
// quote when available, otherwise a direct lookup. Trade execution never runs
// against a quote older than QuoteMaxAge.
func (s *PaperTradingService) priceFor(ctx context.Context, display, exchangeSym string) (float64, error) {
	s.mu.Lock()
	q, ok := s.quotes[display]
	s.mu.Unlock()
	if ok && s.now().Sub(q.At) <= s.cfg.QuoteMaxAge {
		return q.Price, nil
	}

	price, err := s.prices.GetPrice(ctx, exchangeSym)
	if err != nil {
		s.logger.Warn(ctx, "Price lookup failed for trade", map[string]interface{}{"symbol": display, "error": err.Error()})
		return 0, fmt.Errorf("resolve price for %s: %w", display, ports.ErrPriceUnavailable)
	}

	s.mu.Lock()
	s.quotes[display] = domain.Quote{Symbol: exchangeSym, Price: price, At: s.now().UTC()}
	s.mu.Unlock()
	return price, nil
}

// SubmitTrade executes a manual buy or sell for a watchlist symbol at the
// current market price and returns the executed trade. Validation failures
// come back unchanged from the ledger so callers can surface the shortfall.
func (s *PaperTradingService) SubmitTrade(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (*domain.Trade, error) {
	op := "SubmitTrade"

	exchangeSym, ok := s.cfg.ExchangeFor(symbol)
	if !ok {
		return nil, fmt.Errorf("symbol %q: %w", symbol, ports.ErrUnknownSymbol)
	}

	price, err := s.priceFor(ctx, symbol, exchangeSym)
	if err != nil {
		return nil, err
	}

	trade, err := s.book.ExecuteTrade(symbol, side, quantity, price)
	if err != nil {
		s.logger.Info(ctx, op+": order rejected", map[string]interface{}{
			"symbol": symbol, "side": side, "quantity": quantity, "reason": err.Error(),
		})
		return nil, err
	}
	s.logger.Info(ctx, op+": order executed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": symbol, "side": side, "quantity": quantity, "price": price,
	})

	s.persist(ctx, trade)
	s.sampleEquity(ctx)
	s.notify(trade)
	return trade, nil
}

// Deposit adds cash to the account and persists the new balance.
func (s *PaperTradingService) Deposit(ctx context.Context, amount float64) error {
	if err := s.book.Deposit(amount); err != nil {
		return err
	}
	s.logger.Info(ctx, "Deposit accepted", map[string]interface{}{"amount": amount, "cash": s.book.Cash()})

	s.persist(ctx, nil)
	s.sampleEquity(ctx)
	s.notify(nil)
	return nil
}

// ResetAccount restarts the simulation with the given starting balance,
// clearing positions, trade history and the equity series.
func (s *PaperTradingService) ResetAccount(ctx context.Context, initialCash float64) error {
	if err := s.book.Reset(initialCash); err != nil {
		return err
	}
	s.recorder.Clear()
	if err := s.repo.Reset(ctx, initialCash); err != nil {
		s.logger.Error(ctx, err, "Failed to reset persisted account")
		return fmt.Errorf("failed to reset account store: %w", err)
	}
	s.logger.Info(ctx, "Account reset", map[string]interface{}{"initialCash": initialCash})

	s.sampleEquity(ctx)
	s.notify(nil)
	return nil
}

// Snapshot returns the current account view against the cached prices.
func (s *PaperTradingService) Snapshot() domain.AccountSnapshot {
	return s.book.Snapshot(s.latestPrices())
}

// Positions returns the open positions.
func (s *PaperTradingService) Positions() []domain.Position {
	return s.book.Positions()
}

// History returns up to limit trades, newest first.
func (s *PaperTradingService) History(limit int) []domain.Trade {
	trades := s.book.Trades()
	// Reverse chronological for display.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades
}

// RealizedPnL returns the realized P&L locked in by all sells to date.
func (s *PaperTradingService) RealizedPnL() float64 {
	return s.book.RealizedPnL()
}

// EquityHistory returns the equity series for a named look-back range.
func (s *PaperTradingService) EquityHistory(rangeSelector string) ([]domain.EquityPoint, error) {
	return s.recorder.Query(rangeSelector)
}

// OnChange registers a listener invoked after every account mutation.
func (s *PaperTradingService) OnChange(fn ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// persist writes the mutated state; the in-memory ledger stays authoritative,
// so persistence failures are logged rather than unwinding the trade.
func (s *PaperTradingService) persist(ctx context.Context, trade *domain.Trade) {
	if trade != nil {
		if err := s.repo.AppendTrade(ctx, trade); err != nil {
			s.logger.Error(ctx, err, "Failed to persist trade", map[string]interface{}{"tradeID": trade.ID})
		}
	}
	if err := s.repo.SaveState(ctx, s.book.State()); err != nil {
		s.logger.Error(ctx, err, "Failed to persist account state")
	}
}

// sampleEquity records one equity sample and mirrors it to the store.
func (s *PaperTradingService) sampleEquity(ctx context.Context) {
	at := s.now().UTC()
	snap := s.Snapshot()
	s.recorder.Record(at, snap.Equity)

	if s.equityRepo != nil {
		point := domain.EquityPoint{At: at, Equity: snap.Equity}
		if err := s.equityRepo.AppendEquityPoint(ctx, point); err != nil {
			s.logger.Warn(ctx, "Failed to persist equity point", map[string]interface{}{"error": err.Error()})
		}
		if err := s.equityRepo.PruneEquityBefore(ctx, at.Add(-s.cfg.EquityMaxAge)); err != nil {
			s.logger.Warn(ctx, "Failed to prune equity history", map[string]interface{}{"error": err.Error()})
		}
	}
}

// notify fans the change out to listeners outside any internal lock.
func (s *PaperTradingService) notify(trade *domain.Trade) {
	snap := s.Snapshot()
	s.mu.Lock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap, trade)
	}
}
