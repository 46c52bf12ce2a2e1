package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GoldAPIOptions parameterise the gold-api.com quote provider.
type GoldAPIOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// GoldAPI fetches spot prices from gold-api.com, one symbol per request.
type GoldAPI struct {
	opts    GoldAPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewGoldAPI constructs a gold-api quote provider.
func NewGoldAPI(opts GoldAPIOptions, logger zerolog.Logger) *GoldAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.gold-api.com"
	}

	return &GoldAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "goldapi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type goldAPIResponse struct {
	Price json.Number `json:"price"`
}

// Quote retrieves the current USD price for one symbol. A 404 means the
// provider does not serve that symbol.
func (g *GoldAPI) Quote(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/price/%s", g.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, parseHTTPError("gold-api", resp.StatusCode, payload)
	}

	var quote goldAPIResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode gold-api response: %w", err)
	}
	if quote.Price == "" {
		return decimal.Decimal{}, fmt.Errorf("gold-api response missing price for %s", symbol)
	}

	price, err := decimal.NewFromString(quote.Price.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse gold-api price: %w", err)
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("gold-api returned non-positive price for %s", symbol)
	}

	return price, nil
}

var _ Quoter = (*GoldAPI)(nil)
