package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Ledger validation errors. A rejected operation leaves the account unchanged.
	ErrInvalidAmount        = errors.New("amount must be a positive finite number")
	ErrInvalidQuantity      = errors.New("quantity must be a positive finite number")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrPriceUnavailable     = errors.New("no price available for symbol")
	ErrUnknownSymbol        = errors.New("symbol is not on the watchlist")

	// General Errors
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Price Feed Specific Errors
	ErrFeedUnavailable  = errors.New("price feed is unavailable")
	ErrConnectionFailed = errors.New("failed to connect to the price feed")
	ErrRateLimited      = errors.New("API rate limit exceeded")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// InsufficientCashError rejects a BUY whose notional exceeds available cash.
// It carries the shortfall amounts so the presentation layer can tell the user
// exactly what was needed versus what was there.
type InsufficientCashError struct {
	Required  float64 // Notional the order would have cost
	Available float64 // Cash balance at the time of the order
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("insufficient cash: need %.2f, have %.2f", e.Required, e.Available)
}

// Unwrap makes errors.Is(err, ErrInsufficientCash) work on the typed error.
func (e *InsufficientCashError) Unwrap() error { return ErrInsufficientCash }

// InsufficientHoldingsError rejects a SELL for more units than are held.
type InsufficientHoldingsError struct {
	Symbol    string
	Required  float64 // Quantity the order asked to sell
	Available float64 // Quantity actually held
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings of %s: need %g, have %g", e.Symbol, e.Required, e.Available)
}

func (e *InsufficientHoldingsError) Unwrap() error { return ErrInsufficientHoldings }
