package alerting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"metalwatch/internal/storage"
)

type fakeHistory struct {
	observations map[string][]storage.PriceObservation
}

func (h *fakeHistory) add(symbol, name string, price float64, at time.Time) {
	if h.observations == nil {
		h.observations = make(map[string][]storage.PriceObservation)
	}
	h.observations[symbol] = append(h.observations[symbol], storage.PriceObservation{
		Symbol:     symbol,
		Name:       name,
		USDPrice:   decimal.NewFromFloat(price),
		ObservedAt: at,
	})
	sort.Slice(h.observations[symbol], func(i, j int) bool {
		return h.observations[symbol][i].ObservedAt.Before(h.observations[symbol][j].ObservedAt)
	})
}

func (h *fakeHistory) LatestPrice(ctx context.Context, symbol string) (storage.PriceObservation, bool, error) {
	series := h.observations[symbol]
	if len(series) == 0 {
		return storage.PriceObservation{}, false, nil
	}
	return series[len(series)-1], true, nil
}

func (h *fakeHistory) PriceAsOf(ctx context.Context, symbol string, cutoff time.Time) (storage.PriceObservation, bool, error) {
	series := h.observations[symbol]
	for i := len(series) - 1; i >= 0; i-- {
		if !series[i].ObservedAt.After(cutoff) {
			return series[i], true, nil
		}
	}
	return storage.PriceObservation{}, false, nil
}

func (h *fakeHistory) DistinctSymbols(ctx context.Context) ([]string, error) {
	symbols := make([]string, 0, len(h.observations))
	for symbol := range h.observations {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (h *fakeHistory) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]storage.PriceObservation, error) {
	return nil, nil
}

func (h *fakeHistory) ListRecentPrices(ctx context.Context, limit int) ([]storage.PriceObservation, error) {
	return nil, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]time.Time
	upserts int
}

func (l *fakeLedger) key(symbol, label string) string { return symbol + "|" + label }

func (l *fakeLedger) Cooldown(ctx context.Context, symbol, label string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sent, ok := l.records[l.key(symbol, label)]
	return sent, ok, nil
}

func (l *fakeLedger) UpsertCooldown(ctx context.Context, symbol, label string, sentAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = make(map[string]time.Time)
	}
	l.records[l.key(symbol, label)] = sentAt
	l.upserts++
	return nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

func newTestEvaluator(history *fakeHistory, ledger *fakeLedger, notifier Notifier, now time.Time) *Evaluator {
	e := NewEvaluator(Options{
		History:  history,
		Ledger:   ledger,
		Notifier: notifier,
	}, zerolog.Nop())
	e.now = func() time.Time { return now }
	return e
}

func TestEvaluatorFiresDailyAlert(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	history.add("XAU", "Gold", 2000, now.Add(-25*time.Hour))
	history.add("XAU", "Gold", 2050, now.Add(-time.Minute))

	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}

	fired, err := newTestEvaluator(history, ledger, notifier, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 1 {
		t.Fatalf("期望触发 1 条告警, 实际 %d", fired)
	}

	sent, ok := ledger.records["XAU|daily"]
	if !ok {
		t.Fatal("应写入 (XAU, daily) 冷却记录")
	}
	if !sent.Equal(now) {
		t.Fatalf("冷却时间应为 now, 实际 %v", sent)
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("应发送 1 条消息, 实际 %d", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if !strings.Contains(msg, "Gold") || !strings.Contains(msg, "2.50%") || !strings.Contains(msg, "up") {
		t.Fatalf("消息内容不正确: %s", msg)
	}
	if !strings.Contains(msg, "$2,000.00") || !strings.Contains(msg, "$2,050.00") {
		t.Fatalf("价格格式不正确: %s", msg)
	}
}

func TestEvaluatorCooldownSuppressesAlert(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	// 10% move, well above every threshold.
	history.add("XAU", "Gold", 2000, now.Add(-40*24*time.Hour))
	history.add("XAU", "Gold", 2200, now.Add(-time.Minute))

	ledger := &fakeLedger{records: map[string]time.Time{
		"XAU|daily":   now.Add(-time.Hour),
		"XAU|weekly":  now.Add(-24 * time.Hour),
		"XAU|monthly": now.Add(-48 * time.Hour),
	}}
	notifier := &fakeNotifier{}

	fired, err := newTestEvaluator(history, ledger, notifier, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 0 {
		t.Fatalf("冷却期内不应触发告警, 实际 %d", fired)
	}
	if ledger.upserts != 0 {
		t.Fatalf("冷却期内不应更新台账, upserts=%d", ledger.upserts)
	}
	if len(notifier.messages) != 0 {
		t.Fatal("冷却期内不应发送消息")
	}
}

func TestEvaluatorExpiredCooldownEvaluatesFresh(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	// 0.98% move, below the daily threshold.
	history.add("XAU", "Gold", 2040, now.Add(-25*time.Hour))
	history.add("XAU", "Gold", 2060, now.Add(-time.Minute))

	ledger := &fakeLedger{records: map[string]time.Time{
		"XAU|daily": now.Add(-25 * time.Hour),
	}}
	notifier := &fakeNotifier{}

	evaluator := NewEvaluator(Options{
		History:  history,
		Ledger:   ledger,
		Notifier: notifier,
		Windows:  []Window{DefaultWindows()[0]},
	}, zerolog.Nop())
	evaluator.now = func() time.Time { return now }

	fired, err := evaluator.Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 0 {
		t.Fatalf("低于阈值不应触发告警, 实际 %d", fired)
	}
	if ledger.upserts != 0 {
		t.Fatal("未触发告警不应更新台账")
	}
}

func TestEvaluatorThresholdBoundary(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	daily := []Window{DefaultWindows()[0]}

	cases := []struct {
		name     string
		oldPrice float64
		newPrice float64
		fired    int
	}{
		{"exactly threshold", 100, 102, 1},
		{"just below threshold", 1000000, 1019999.99, 0},
		{"exactly threshold down", 100, 98, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			history := &fakeHistory{}
			history.add("XAG", "Silver", tc.oldPrice, now.Add(-25*time.Hour))
			history.add("XAG", "Silver", tc.newPrice, now.Add(-time.Minute))

			evaluator := NewEvaluator(Options{
				History:  history,
				Ledger:   &fakeLedger{},
				Notifier: &fakeNotifier{},
				Windows:  daily,
			}, zerolog.Nop())
			evaluator.now = func() time.Time { return now }

			fired, err := evaluator.Run(context.Background())
			if err != nil {
				t.Fatalf("Run 不应失败: %v", err)
			}
			if fired != tc.fired {
				t.Fatalf("期望触发 %d 条, 实际 %d", tc.fired, fired)
			}
		})
	}
}

func TestEvaluatorZeroComparatorNeverAlerts(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	history.add("HG", "Copper (per pound)", 0, now.Add(-40*24*time.Hour))
	history.add("HG", "Copper (per pound)", 4.5, now.Add(-time.Minute))

	ledger := &fakeLedger{}
	fired, err := newTestEvaluator(history, ledger, &fakeNotifier{}, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 0 {
		t.Fatalf("零对比价不应触发告警, 实际 %d", fired)
	}
	if ledger.upserts != 0 {
		t.Fatal("零对比价不应更新台账")
	}
}

func TestEvaluatorMissingHistorySkips(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	// Only one fresh observation; no comparator for any window.
	history.add("BTC", "Bitcoin", 70000, now.Add(-time.Minute))

	fired, err := newTestEvaluator(history, &fakeLedger{}, &fakeNotifier{}, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 0 {
		t.Fatalf("历史不足不应触发告警, 实际 %d", fired)
	}
}

func TestEvaluatorMultipleWindowsSameSymbol(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	// A 20% move against every comparator trips all three windows.
	history.add("XPD", "Palladium", 1000, now.Add(-31*24*time.Hour))
	history.add("XPD", "Palladium", 1000, now.Add(-8*24*time.Hour))
	history.add("XPD", "Palladium", 1000, now.Add(-25*time.Hour))
	history.add("XPD", "Palladium", 1200, now.Add(-time.Minute))

	ledger := &fakeLedger{}
	notifier := &fakeNotifier{}

	fired, err := newTestEvaluator(history, ledger, notifier, now).Run(context.Background())
	if err != nil {
		t.Fatalf("Run 不应失败: %v", err)
	}
	if fired != 3 {
		t.Fatalf("期望三个窗口都触发, 实际 %d", fired)
	}
	for _, label := range []string{"daily", "weekly", "monthly"} {
		if _, ok := ledger.records["XPD|"+label]; !ok {
			t.Fatalf("缺少 (XPD, %s) 冷却记录", label)
		}
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("所有告警应合并为一条消息, 实际 %d", len(notifier.messages))
	}
}

func TestEvaluatorUpsertKeepsSingleRecordPerKey(t *testing.T) {
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	history.add("XAU", "Gold", 2000, base.Add(-25*time.Hour))
	history.add("XAU", "Gold", 2100, base.Add(-time.Minute))

	ledger := &fakeLedger{}
	daily := []Window{DefaultWindows()[0]}

	first := base
	second := base.Add(26 * time.Hour)
	prices := map[time.Time]float64{first: 2205, second: 2400}
	for _, runNow := range []time.Time{first, second} {
		history.add("XAU", "Gold", prices[runNow], runNow.Add(-time.Second))

		evaluator := NewEvaluator(Options{
			History:  history,
			Ledger:   ledger,
			Notifier: &fakeNotifier{},
			Windows:  daily,
		}, zerolog.Nop())
		now := runNow
		evaluator.now = func() time.Time { return now }

		if _, err := evaluator.Run(context.Background()); err != nil {
			t.Fatalf("Run 不应失败: %v", err)
		}
	}

	if len(ledger.records) != 1 {
		t.Fatalf("同一 (symbol, label) 应只有一条记录, 实际 %d", len(ledger.records))
	}
	if sent := ledger.records["XAU|daily"]; !sent.Equal(second) {
		t.Fatalf("last_sent_at 应为最近一次触发时间, 实际 %v", sent)
	}
}

func TestEvaluatorDeliveryFailureKeepsLedger(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	history := &fakeHistory{}
	history.add("XAU", "Gold", 2000, now.Add(-25*time.Hour))
	history.add("XAU", "Gold", 2100, now.Add(-time.Minute))

	ledger := &fakeLedger{}
	notifier := &fakeNotifier{err: errors.New("telegram down")}

	fired, err := newTestEvaluator(history, ledger, notifier, now).Run(context.Background())
	if err != nil {
		t.Fatalf("发送失败不应使 Run 报错: %v", err)
	}
	if fired == 0 {
		t.Fatal("告警应已触发")
	}
	if _, ok := ledger.records["XAU|daily"]; !ok {
		t.Fatal("发送失败后冷却记录仍应保留")
	}
}
