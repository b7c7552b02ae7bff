package model

import "time"

// Price is a spot quote of a coin in a fiat currency.
type Price struct {
	Coin      string
	Currency  string
	Value     float64
	UpdatedAt time.Time
}
