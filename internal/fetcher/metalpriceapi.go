package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MetalPriceAPIOptions parameterise the metalpriceapi.com provider.
type MetalPriceAPIOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// MetalPriceAPI fetches spot prices from metalpriceapi.com. The provider
// quotes rates relative to a base currency rather than flat USD prices, so
// the response needs either the composite USD<symbol> field or an inversion
// of the plain per-USD rate.
type MetalPriceAPI struct {
	opts    MetalPriceAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMetalPriceAPI constructs a metalpriceapi quote provider.
func NewMetalPriceAPI(opts MetalPriceAPIOptions, logger zerolog.Logger) *MetalPriceAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.metalpriceapi.com/v1"
	}

	return &MetalPriceAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "metalpriceapi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type metalPriceResponse struct {
	Success bool                   `json:"success"`
	Rates   map[string]json.Number `json:"rates"`
}

// Quote retrieves the current USD price for one symbol.
func (m *MetalPriceAPI) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if m.opts.APIKey == "" {
		return decimal.Decimal{}, errors.New("metalpriceapi api key not configured")
	}

	params := url.Values{}
	params.Set("api_key", m.opts.APIKey)
	params.Set("base", "USD")
	params.Set("currencies", symbol)

	endpoint := m.baseURL + "/latest?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError("metalpriceapi", resp.StatusCode, payload)
	}

	var quote metalPriceResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode metalpriceapi response: %w", err)
	}
	if !quote.Success {
		return decimal.Decimal{}, fmt.Errorf("metalpriceapi response success=false for %s", symbol)
	}

	// USD<symbol> is the USD price directly; the bare symbol rate is
	// <symbol> per USD and needs inverting.
	if composite, ok := quote.Rates["USD"+symbol]; ok {
		price, err := decimal.NewFromString(composite.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse metalpriceapi rate: %w", err)
		}
		if !price.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("metalpriceapi returned non-positive price for %s", symbol)
		}
		return price, nil
	}

	if perUSD, ok := quote.Rates[symbol]; ok {
		rate, err := decimal.NewFromString(perUSD.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse metalpriceapi rate: %w", err)
		}
		if !rate.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("metalpriceapi returned non-positive rate for %s", symbol)
		}
		return decimal.NewFromInt(1).Div(rate), nil
	}

	return decimal.Decimal{}, fmt.Errorf("metalpriceapi response missing rate for %s", symbol)
}

var _ Quoter = (*MetalPriceAPI)(nil)
