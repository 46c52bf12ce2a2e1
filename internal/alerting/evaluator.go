package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/metrics"
	"metalwatch/internal/storage"
)

var dec100 = decimal.NewFromInt(100)

// Alert is one triggered (symbol, window) movement.
type Alert struct {
	Symbol    string
	Name      string
	Label     string
	Period    string
	PctChange decimal.Decimal
	Threshold decimal.Decimal
	Direction string
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
}

// Options wire an Evaluator.
type Options struct {
	History  storage.PriceHistory
	Ledger   storage.CooldownLedger
	Notifier Notifier
	Windows  []Window
	Locker   storage.AdvisoryLocker
	LockKey  int64
}

// Evaluator 针对每个品种与时间窗口判断是否触发价格波动告警。
// One run captures a single "now" and uses it for every comparison, so the
// run stays internally consistent while ingestion appends concurrently.
type Evaluator struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// NewEvaluator constructs an alert evaluator.
func NewEvaluator(opts Options, logger zerolog.Logger) *Evaluator {
	if len(opts.Windows) == 0 {
		opts.Windows = DefaultWindows()
	}
	return &Evaluator{
		opts:   opts,
		logger: logger.With().Str("component", "alert_evaluator").Logger(),
		now:    time.Now,
	}
}

// Run evaluates every tracked symbol against every window, records cooldowns
// for triggered alerts, and sends one combined message. It returns the number
// of alerts fired.
func (e *Evaluator) Run(ctx context.Context) (int, error) {
	started := time.Now()
	defer func() {
		metrics.AlertRunDuration.Observe(time.Since(started).Seconds())
	}()

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !proceed {
		e.logger.Debug().Msg("skip run because advisory lock held elsewhere")
		return 0, nil
	}
	if unlock != nil {
		defer unlock()
	}

	now := e.now().UTC()

	symbols, err := e.opts.History.DistinctSymbols(ctx)
	if err != nil {
		return 0, err
	}

	alerts := make([]Alert, 0)
	for _, symbol := range symbols {
		current, ok, err := e.opts.History.LatestPrice(ctx, symbol)
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to read latest price")
			continue
		}
		if !ok {
			continue
		}

		for _, window := range e.opts.Windows {
			alert, fired := e.evaluateWindow(ctx, now, symbol, current, window)
			if !fired {
				continue
			}

			alerts = append(alerts, alert)

			if err := e.opts.Ledger.UpsertCooldown(ctx, symbol, window.Label, now); err != nil {
				e.logger.Error().Err(err).
					Str("symbol", symbol).
					Str("label", window.Label).
					Msg("failed to record cooldown")
			}

			e.logger.Info().
				Str("symbol", symbol).
				Str("label", window.Label).
				Str("pct_change", alert.PctChange.StringFixed(2)).
				Str("direction", alert.Direction).
				Msg("告警触发")
		}
	}

	if len(alerts) == 0 {
		e.logger.Info().Msg("no alerts to send")
		return 0, nil
	}

	metrics.AlertsFiredTotal.Add(float64(len(alerts)))

	if e.opts.Notifier == nil {
		e.logger.Warn().Int("alerts", len(alerts)).Msg("no notifier configured; alerts recorded but not delivered")
		return len(alerts), nil
	}

	// Cooldowns are already committed: a delivery failure must not cause a
	// duplicate alert on the next run.
	if err := e.opts.Notifier.Notify(ctx, RenderMessage(alerts, now)); err != nil {
		metrics.AlertDeliveryFailuresTotal.Inc()
		e.logger.Error().Err(err).Int("alerts", len(alerts)).Msg("failed to deliver alert message")
	}

	return len(alerts), nil
}

// evaluateWindow runs the cooldown and threshold checks for one
// (symbol, window) pair. A missing comparator or active cooldown silently
// skips the pair.
func (e *Evaluator) evaluateWindow(ctx context.Context, now time.Time, symbol string, current storage.PriceObservation, window Window) (Alert, bool) {
	lastSent, ok, err := e.opts.Ledger.Cooldown(ctx, symbol, window.Label)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", symbol).Str("label", window.Label).Msg("failed to read cooldown")
		return Alert{}, false
	}
	if ok && now.Sub(lastSent) < window.Span {
		e.logger.Debug().Str("symbol", symbol).Str("label", window.Label).Msg("cooldown active")
		return Alert{}, false
	}

	cutoff := now.Add(-window.Span)
	comparator, ok, err := e.opts.History.PriceAsOf(ctx, symbol, cutoff)
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", symbol).Str("label", window.Label).Msg("failed to read comparator price")
		return Alert{}, false
	}
	if !ok {
		// Not enough history yet.
		return Alert{}, false
	}
	if comparator.USDPrice.IsZero() {
		// Guard divide-by-zero; a zero comparator never alerts.
		return Alert{}, false
	}

	pctChange := current.USDPrice.Sub(comparator.USDPrice).Div(comparator.USDPrice).Mul(dec100)
	if pctChange.Abs().LessThan(window.Threshold) {
		return Alert{}, false
	}

	direction := "down"
	if pctChange.IsPositive() {
		direction = "up"
	}

	name := current.Name
	if name == "" {
		name = symbol
	}

	return Alert{
		Symbol:    symbol,
		Name:      name,
		Label:     window.Label,
		Period:    window.Period,
		PctChange: pctChange,
		Threshold: window.Threshold,
		Direction: direction,
		OldPrice:  comparator.USDPrice,
		NewPrice:  current.USDPrice,
	}, true
}

func (e *Evaluator) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.opts.LockKey == 0 || e.opts.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.opts.Locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
