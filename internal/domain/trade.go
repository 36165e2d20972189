package domain

import "time"

// Trade represents a single executed fill. Trades are immutable once created
// and the trade history is append-only; insertion order is chronological.
type Trade struct {
	ID          string    // ULID, time-sortable
	Symbol      string    // Display symbol (e.g. "ETH/USD")
	Side        OrderSide // BUY or SELL
	Quantity    float64   // Filled quantity, always positive
	Price       float64   // Execution price in USD per unit
	Notional    float64   // Quantity * Price
	RealizedPnL float64   // (Price - avg cost at time of sale) * Quantity; 0 for BUY
	ExecutedAt  time.Time // Execution timestamp (UTC)
}
