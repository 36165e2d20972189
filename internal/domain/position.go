package domain

// Position represents an open holding in a single symbol.
// A position exists only while its quantity is positive; selling the last unit
// removes it from the account rather than leaving a zeroed entry.
type Position struct {
	Symbol   string  // Display symbol (e.g. "ETH/USD")
	Quantity float64 // Held quantity, always > 0 while the position exists
	AvgCost  float64 // Volume-weighted average purchase price in USD per unit
}

// MarketValue returns the position's value at the given price.
func (p *Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// UnrealizedPnL returns the paper profit or loss at the given price,
// measured against the average cost basis.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgCost) * p.Quantity
}
