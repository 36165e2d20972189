package ports

import (
	"context"

	"papertrader/internal/domain"
)

// PriceSource supplies current USD quotes for exchange symbols.
// Implementations are best-effort: a batch lookup may return a partial map,
// omitting symbols it could not resolve within its time budget. Consumers of
// partial results degrade gracefully; only trade execution requires a price.
type PriceSource interface {
	// GetPrice returns the latest price for a single exchange symbol.
	// Returns an error wrapping ErrPriceUnavailable if the symbol cannot be resolved.
	GetPrice(ctx context.Context, symbol string) (float64, error)

	// GetPrices returns the latest prices for the given exchange symbols,
	// keyed by symbol. Unresolvable symbols are omitted from the map; the
	// call fails only when the feed itself is unreachable.
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)

	// Ping checks connectivity to the feed.
	Ping(ctx context.Context) error
}

// QuoteStreamer is implemented by price sources that can push quote updates.
// The returned channels follow the same contract as a long-lived stream:
// doneCh closes when the stream has shut down for good, stopCh lets the
// caller request shutdown.
type QuoteStreamer interface {
	StreamQuotes(ctx context.Context, symbols []string, handler func(q domain.Quote), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
