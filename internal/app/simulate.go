package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"metalwatch/internal/alerting"
	"metalwatch/internal/storage"
)

// SimulateAlert 用给定的当前价/历史价模拟一次完整的告警评估与发送。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("telegram credentials not configured")
	}

	now := time.Now().UTC()
	history := &staticHistory{
		symbol: opts.Symbol,
		latest: storage.PriceObservation{
			Symbol:     opts.Symbol,
			Name:       a.Config.CommodityName(opts.Symbol),
			USDPrice:   opts.NewPrice,
			ObservedAt: now,
		},
		comparator: storage.PriceObservation{
			Symbol:     opts.Symbol,
			Name:       a.Config.CommodityName(opts.Symbol),
			USDPrice:   opts.OldPrice,
			ObservedAt: now.Add(-31 * 24 * time.Hour),
		},
	}

	evaluator := alerting.NewEvaluator(alerting.Options{
		History:  history,
		Ledger:   &memoryLedger{},
		Notifier: notifier,
		Windows:  alerting.DefaultWindows(),
	}, a.Logger)

	fired, err := evaluator.Run(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("alerts", fired).Msg("simulation complete")
	return nil
}

// staticHistory serves one symbol with a fixed latest and comparator price.
type staticHistory struct {
	symbol     string
	latest     storage.PriceObservation
	comparator storage.PriceObservation
}

func (h *staticHistory) LatestPrice(ctx context.Context, symbol string) (storage.PriceObservation, bool, error) {
	if symbol != h.symbol {
		return storage.PriceObservation{}, false, nil
	}
	return h.latest, true, nil
}

func (h *staticHistory) PriceAsOf(ctx context.Context, symbol string, cutoff time.Time) (storage.PriceObservation, bool, error) {
	if symbol != h.symbol || h.comparator.ObservedAt.After(cutoff) {
		return storage.PriceObservation{}, false, nil
	}
	return h.comparator, true, nil
}

func (h *staticHistory) DistinctSymbols(ctx context.Context) ([]string, error) {
	return []string{h.symbol}, nil
}

func (h *staticHistory) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]storage.PriceObservation, error) {
	return nil, nil
}

func (h *staticHistory) ListRecentPrices(ctx context.Context, limit int) ([]storage.PriceObservation, error) {
	return nil, nil
}

// memoryLedger is an in-process cooldown ledger for simulations.
type memoryLedger struct {
	mu      sync.Mutex
	records map[string]time.Time
}

func (l *memoryLedger) key(symbol, label string) string {
	return symbol + "|" + label
}

func (l *memoryLedger) Cooldown(ctx context.Context, symbol, label string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sent, ok := l.records[l.key(symbol, label)]
	return sent, ok, nil
}

func (l *memoryLedger) UpsertCooldown(ctx context.Context, symbol, label string, sentAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = make(map[string]time.Time)
	}
	l.records[l.key(symbol, label)] = sentAt
	return nil
}

var _ storage.PriceHistory = (*staticHistory)(nil)
var _ storage.CooldownLedger = (*memoryLedger)(nil)
