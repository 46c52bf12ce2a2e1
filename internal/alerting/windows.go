package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Window is one fixed lookback period with its own threshold. The window
// span doubles as the cooldown for its (symbol, label) ledger key.
type Window struct {
	Label     string
	Period    string
	Span      time.Duration
	Threshold decimal.Decimal
}

// DefaultWindows returns the three fixed alert windows in evaluation order.
// The monthly window is a flat 30 days; no calendar-month semantics.
func DefaultWindows() []Window {
	return []Window{
		{Label: "daily", Period: "1 day", Span: 24 * time.Hour, Threshold: decimal.NewFromInt(2)},
		{Label: "weekly", Period: "1 week", Span: 7 * 24 * time.Hour, Threshold: decimal.NewFromInt(5)},
		{Label: "monthly", Period: "1 month", Span: 30 * 24 * time.Hour, Threshold: decimal.NewFromInt(10)},
	}
}
