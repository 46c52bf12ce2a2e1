package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedSymbol reports that the provider has no quote for a symbol.
var ErrUnsupportedSymbol = errors.New("symbol not supported by provider")

// Quoter retrieves the current USD price for one instrument symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// FXFetcher retrieves the current rates vs USD for all currencies the
// provider knows. Callers filter down to the currencies they track.
type FXFetcher interface {
	Rates(ctx context.Context) (map[string]decimal.Decimal, error)
}

type errorResponse struct {
	Error       string `json:"error"`
	ErrorType   string `json:"error_type"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Description, apiErr.Message, apiErr.Error, apiErr.ErrorType} {
			if msg != "" {
				return fmt.Errorf("%s api error (%d): %s", provider, status, msg)
			}
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%s api error (%d): %s", provider, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%s api error (%d)", provider, status)
}
