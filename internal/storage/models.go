package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceObservation is one appended commodity price point. Rows are never
// updated or deleted; the per-symbol sequence ordered by ObservedAt is the
// price history.
type PriceObservation struct {
	Symbol     string
	Name       string
	USDPrice   decimal.Decimal
	ObservedAt time.Time
}

// FXObservation is one appended currency rate vs USD.
type FXObservation struct {
	Currency   string
	RateVsUSD  decimal.Decimal
	ObservedAt time.Time
}

// CooldownRecord tracks when an alert was last sent for a (symbol, label)
// pair. At most one row exists per pair.
type CooldownRecord struct {
	Symbol     string
	Label      string
	LastSentAt time.Time
}
