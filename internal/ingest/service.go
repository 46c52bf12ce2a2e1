package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/fetcher"
	"metalwatch/internal/metrics"
	"metalwatch/internal/storage"
)

// Task selects which update an ingestion run performs.
const (
	TaskCommodities = "commodities"
	TaskFX          = "fx"
	TaskPlatinum    = "platinum"
)

// ErrUnknownTask reports an unrecognised task selector. The trigger surface
// maps it to a client error.
var ErrUnknownTask = errors.New("unknown update task")

// Instrument pairs a tracked symbol with its display name.
type Instrument struct {
	Symbol string
	Name   string
}

// Options wire an ingestion service.
type Options struct {
	Quoter        fetcher.Quoter
	Special       fetcher.Quoter
	FX            fetcher.FXFetcher
	Store         storage.PriceAppender
	Commodities   []Instrument
	SpecialSymbol string
	SpecialName   string
	Currencies    []string
}

// Service pulls current prices and rates from providers and appends them to
// the price store. One call is one run; failed symbols are skipped and picked
// up on the next scheduled tick.
type Service struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs an ingestion service.
func New(opts Options, logger zerolog.Logger) *Service {
	return &Service{
		opts:   opts,
		logger: logger.With().Str("component", "ingest").Logger(),
		now:    time.Now,
	}
}

// RunTask executes one update run for the given task selector.
func (s *Service) RunTask(ctx context.Context, task string) error {
	started := time.Now()
	defer func() {
		metrics.IngestRunDuration.WithLabelValues(task).Observe(time.Since(started).Seconds())
	}()

	switch task {
	case TaskCommodities:
		prices := s.FetchCommodityPrices(ctx)
		return s.SaveCommodityPrices(ctx, prices)
	case TaskFX:
		return s.updateFXRates(ctx)
	case TaskPlatinum:
		return s.updateSpecial(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
}

// FetchCommodityPrices pulls one quote per tracked commodity. Per-symbol
// failures are logged and the symbol is omitted; the batch never aborts.
func (s *Service) FetchCommodityPrices(ctx context.Context) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(s.opts.Commodities))

	for _, inst := range s.opts.Commodities {
		if inst.Symbol == s.opts.SpecialSymbol {
			// Served by its own provider and task.
			continue
		}

		price, err := s.opts.Quoter.Quote(ctx, inst.Symbol)
		if err != nil {
			metrics.ProviderErrorsTotal.WithLabelValues("commodity").Inc()
			if errors.Is(err, fetcher.ErrUnsupportedSymbol) {
				s.logger.Warn().Str("symbol", inst.Symbol).Msg("symbol not supported by provider")
			} else {
				s.logger.Warn().Err(err).Str("symbol", inst.Symbol).Msg("failed to fetch price")
			}
			continue
		}

		prices[inst.Symbol] = price
		s.logger.Info().Str("symbol", inst.Symbol).Str("usd_price", price.String()).Msg("fetched price")
	}

	return prices
}

// FetchSpecialPrice pulls the quote for the instrument served by the
// separate provider.
func (s *Service) FetchSpecialPrice(ctx context.Context) (decimal.Decimal, error) {
	if s.opts.Special == nil {
		return decimal.Decimal{}, errors.New("special price provider not configured")
	}
	return s.opts.Special.Quote(ctx, s.opts.SpecialSymbol)
}

// SaveCommodityPrices appends fetched prices, all stamped with a single
// observation time captured at call time. An empty map is a no-op.
func (s *Service) SaveCommodityPrices(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		s.logger.Info().Msg("no commodity prices to save")
		return nil
	}

	observedAt := s.now().UTC()
	observations := make([]storage.PriceObservation, 0, len(prices))
	for symbol, price := range prices {
		observations = append(observations, storage.PriceObservation{
			Symbol:     symbol,
			Name:       s.instrumentName(symbol),
			USDPrice:   price,
			ObservedAt: observedAt,
		})
	}

	if err := s.opts.Store.InsertPrices(ctx, observations); err != nil {
		return fmt.Errorf("save commodity prices: %w", err)
	}

	metrics.PricesSavedTotal.Add(float64(len(observations)))
	s.logger.Info().Int("count", len(observations)).Msg("saved commodity prices")
	return nil
}

// SaveFXRates appends fetched rates with a single observation time. An empty
// map is a no-op.
func (s *Service) SaveFXRates(ctx context.Context, rates map[string]decimal.Decimal) error {
	if len(rates) == 0 {
		s.logger.Info().Msg("no fx rates to save")
		return nil
	}

	observedAt := s.now().UTC()
	observations := make([]storage.FXObservation, 0, len(rates))
	for currency, rate := range rates {
		observations = append(observations, storage.FXObservation{
			Currency:   currency,
			RateVsUSD:  rate,
			ObservedAt: observedAt,
		})
	}

	if err := s.opts.Store.InsertFXRates(ctx, observations); err != nil {
		return fmt.Errorf("save fx rates: %w", err)
	}

	metrics.FXRatesSavedTotal.Add(float64(len(observations)))
	s.logger.Info().Int("count", len(observations)).Msg("saved fx rates")
	return nil
}

// updateFXRates performs the fx task. A provider failure aborts the whole
// update with no partial write.
func (s *Service) updateFXRates(ctx context.Context) error {
	if s.opts.FX == nil {
		s.logger.Warn().Msg("fx provider not configured; skipping fx update")
		return nil
	}

	table, err := s.opts.FX.Rates(ctx)
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues("fx").Inc()
		return fmt.Errorf("fetch fx rates: %w", err)
	}

	tracked := make(map[string]decimal.Decimal, len(s.opts.Currencies))
	for _, currency := range s.opts.Currencies {
		if rate, ok := table[currency]; ok {
			tracked[currency] = rate
		} else {
			s.logger.Warn().Str("currency", currency).Msg("currency missing from provider response")
		}
	}

	return s.SaveFXRates(ctx, tracked)
}

// updateSpecial performs the platinum task.
func (s *Service) updateSpecial(ctx context.Context) error {
	if s.opts.Special == nil {
		s.logger.Warn().Msg("special price provider not configured; skipping update")
		return nil
	}

	price, err := s.FetchSpecialPrice(ctx)
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues("special").Inc()
		s.logger.Warn().Err(err).Str("symbol", s.opts.SpecialSymbol).Msg("failed to fetch special price")
		return s.SaveCommodityPrices(ctx, nil)
	}

	return s.SaveCommodityPrices(ctx, map[string]decimal.Decimal{s.opts.SpecialSymbol: price})
}

func (s *Service) instrumentName(symbol string) string {
	for _, inst := range s.opts.Commodities {
		if inst.Symbol == symbol {
			return inst.Name
		}
	}
	if symbol == s.opts.SpecialSymbol && s.opts.SpecialName != "" {
		return s.opts.SpecialName
	}
	return symbol
}
