package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// Router dispatches symbols to per-symbol quoters, falling back to a default
// provider. It lets configuration decide which instruments are served
// on-chain and which over HTTP without the callers knowing the difference.
type Router struct {
	routes   map[string]Quoter
	fallback Quoter
}

// NewRouter builds a routing quoter.
func NewRouter(routes map[string]Quoter, fallback Quoter) *Router {
	return &Router{routes: routes, fallback: fallback}
}

// Quote delegates to the symbol's quoter.
func (r *Router) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if q, ok := r.routes[symbol]; ok {
		return q.Quote(ctx, symbol)
	}
	if r.fallback == nil {
		return decimal.Decimal{}, ErrUnsupportedSymbol
	}
	return r.fallback.Quote(ctx, symbol)
}

var _ Quoter = (*Router)(nil)
