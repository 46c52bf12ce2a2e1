package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2050", "$2,050.00"},
		{"2050.5", "$2,050.50"},
		{"0.985", "$0.99"},
		{"1234567.891", "$1,234,567.89"},
		{"-12.5", "-$12.50"},
	}

	for _, tc := range cases {
		price, err := decimal.NewFromString(tc.in)
		if err != nil {
			t.Fatalf("解析 %q 失败: %v", tc.in, err)
		}
		if got := FormatUSD(price); got != tc.want {
			t.Errorf("FormatUSD(%s) = %q, 期望 %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderMessage(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 30, 0, 0, time.UTC)

	alerts := []Alert{
		{
			Symbol:    "XAU",
			Name:      "Gold",
			Label:     "daily",
			Period:    "1 day",
			PctChange: decimal.RequireFromString("2.5"),
			Threshold: decimal.NewFromInt(2),
			Direction: "up",
			OldPrice:  decimal.NewFromInt(2000),
			NewPrice:  decimal.NewFromInt(2050),
		},
		{
			Symbol:    "XAG",
			Name:      "Silver",
			Label:     "weekly",
			Period:    "1 week",
			PctChange: decimal.RequireFromString("-6.1"),
			Threshold: decimal.NewFromInt(5),
			Direction: "down",
			OldPrice:  decimal.RequireFromString("26.20"),
			NewPrice:  decimal.RequireFromString("24.60"),
		},
	}

	msg := RenderMessage(alerts, now)

	if !strings.HasPrefix(msg, "*Commodity Price Alerts*\n") {
		t.Fatalf("缺少标题: %s", msg)
	}
	for _, want := range []string{
		"📈 *Gold* moved *2.50%* up in the last 1 day",
		"   • Old price: $2,000.00",
		"   • New price: $2,050.00",
		"   • daily alert ≥ 2%",
		"📉 *Silver* moved *6.10%* down in the last 1 week",
		"   • weekly alert ≥ 5%",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("消息缺少 %q:\n%s", want, msg)
		}
	}
	if !strings.HasSuffix(msg, "_Timestamp: 2026-02-10 12:30 UTC_") {
		t.Fatalf("缺少尾部时间戳: %s", msg)
	}
}
