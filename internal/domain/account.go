package domain

import "time"

// AccountSnapshot is a derived, read-only view of the account at a moment in
// time, computed against the most recently known prices.
type AccountSnapshot struct {
	Cash           float64 // Available cash balance
	PositionsValue float64 // Market value of all open positions
	Equity         float64 // Cash + PositionsValue
	UnrealizedPnL  float64 // Paper P&L across positions with a known price
}

// EquityPoint is a timestamped equity sample used for charting.
type EquityPoint struct {
	At     time.Time
	Equity float64
}

// AccountState is the serializable record of everything the ledger owns.
// It is what gets persisted and restored across restarts.
type AccountState struct {
	Cash      float64
	Positions []Position
	Trades    []Trade // Chronological (oldest first)
}
