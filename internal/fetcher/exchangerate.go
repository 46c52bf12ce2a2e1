package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ExchangeRateOptions parameterise the exchangerate-api.com FX provider.
type ExchangeRateOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ExchangeRateAPI fetches the full conversion table vs USD in one request.
type ExchangeRateAPI struct {
	opts    ExchangeRateOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewExchangeRateAPI constructs an FX fetcher.
func NewExchangeRateAPI(opts ExchangeRateOptions, logger zerolog.Logger) *ExchangeRateAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://v6.exchangerate-api.com"
	}

	return &ExchangeRateAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "exchangerate_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type exchangeRateResponse struct {
	Result          string                 `json:"result"`
	ConversionRates map[string]json.Number `json:"conversion_rates"`
}

// Rates retrieves conversion rates vs USD for every currency the provider
// serves. Any failure aborts the whole call; there is no partial result.
func (e *ExchangeRateAPI) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if e.opts.APIKey == "" {
		return nil, errors.New("exchangerate api key not configured")
	}

	endpoint := fmt.Sprintf("%s/v6/%s/latest/USD", e.baseURL, e.opts.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError("exchangerate", resp.StatusCode, payload)
	}

	var table exchangeRateResponse
	if err := json.Unmarshal(payload, &table); err != nil {
		return nil, fmt.Errorf("decode exchangerate response: %w", err)
	}
	if len(table.ConversionRates) == 0 {
		return nil, errors.New("exchangerate response missing conversion_rates")
	}

	rates := make(map[string]decimal.Decimal, len(table.ConversionRates))
	for currency, raw := range table.ConversionRates {
		rate, convErr := decimal.NewFromString(raw.String())
		if convErr != nil {
			return nil, fmt.Errorf("parse rate for %s: %w", currency, convErr)
		}
		rates[currency] = rate
	}

	return rates, nil
}

var _ FXFetcher = (*ExchangeRateAPI)(nil)
