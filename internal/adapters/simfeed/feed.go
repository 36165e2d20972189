// Package simfeed generates plausible fake prices with a bounded random walk.
// It stands in for the exchange when no backend is reachable or configured,
// so the rest of the system behaves identically in both modes.
package simfeed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

const (
	defaultStartPrice = 100.0
	defaultVolatility = 0.002 // Max relative move per step
	defaultInterval   = 1 * time.Second
)

// Feed implements ports.PriceSource and ports.QuoteStreamer with locally
// generated prices. Each lookup advances the walk one step.
type Feed struct {
	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	volatility float64
	interval   time.Duration
	logger     ports.Logger
	now        func() time.Time
}

// Config holds configuration for the simulated feed.
type Config struct {
	Logger      ports.Logger
	Seed        int64              // 0 seeds from the clock
	StartPrices map[string]float64 // Initial price per exchange symbol
	Volatility  float64            // Max relative move per step; default 0.2%
	Interval    time.Duration      // Stream tick interval; default 1s
	Now         func() time.Time
}

// New creates a simulated price feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for simulated feed")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	volatility := cfg.Volatility
	if volatility <= 0 {
		volatility = defaultVolatility
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	prices := make(map[string]float64, len(cfg.StartPrices))
	for sym, p := range cfg.StartPrices {
		if p > 0 {
			prices[sym] = p
		}
	}

	return &Feed{
		rng:        rand.New(rand.NewSource(seed)),
		prices:     prices,
		volatility: volatility,
		interval:   interval,
		logger:     cfg.Logger,
		now:        now,
	}, nil
}

// step advances the walk for one symbol and returns the new price.
// Unknown symbols start at their configured price or the default.
func (f *Feed) step(symbol string) float64 {
	price, ok := f.prices[symbol]
	if !ok {
		price = defaultStartPrice
	}
	move := (f.rng.Float64()*2 - 1) * f.volatility
	price *= 1 + move
	if price <= 0 {
		price = defaultStartPrice * f.volatility
	}
	f.prices[symbol] = price
	return price
}

// GetPrice returns the next simulated price for the symbol.
func (f *Feed) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step(symbol), nil
}

// GetPrices returns the next simulated prices for all requested symbols.
func (f *Feed) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		out[sym] = f.step(sym)
	}
	return out, nil
}

// Ping always succeeds; the simulation has nothing to reach.
func (f *Feed) Ping(ctx context.Context) error { return nil }

// StreamQuotes emits one quote per symbol every tick until the context is
// cancelled or stopCh is signalled.
func (f *Feed) StreamQuotes(ctx context.Context, symbols []string, handler func(q domain.Quote), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("no symbols to simulate: %w", ports.ErrInvalidRequest)
	}

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				f.logger.Info(ctx, "Simulated stream stopped")
				return
			case <-ticker.C:
				prices, _ := f.GetPrices(ctx, symbols)
				at := f.now().UTC()
				for _, sym := range symbols {
					handler(domain.Quote{Symbol: sym, Price: prices[sym], At: at})
				}
			}
		}
	}()

	return doneCh, stopCh, nil
}
