package domain

import "time"

// Quote is a point-in-time price observation for one symbol.
type Quote struct {
	Symbol string    // Exchange symbol the feed reported (e.g. "ETHUSDT")
	Price  float64   // Last price in USD
	At     time.Time // When the observation was made
}
