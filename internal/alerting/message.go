package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// RenderMessage formats triggered alerts into one combined Telegram Markdown
// message, one paragraph per alert plus a trailing batch timestamp.
func RenderMessage(alerts []Alert, now time.Time) string {
	builder := strings.Builder{}
	builder.WriteString("*Commodity Price Alerts*\n")

	for _, alert := range alerts {
		emoji := "📉"
		if alert.Direction == "up" {
			emoji = "📈"
		}

		builder.WriteString(fmt.Sprintf("\n%s *%s* moved *%s%%* %s in the last %s\n",
			emoji, alert.Name, alert.PctChange.Abs().StringFixed(2), alert.Direction, alert.Period))
		builder.WriteString(fmt.Sprintf("   • Old price: %s\n", FormatUSD(alert.OldPrice)))
		builder.WriteString(fmt.Sprintf("   • New price: %s\n", FormatUSD(alert.NewPrice)))
		builder.WriteString(fmt.Sprintf("   • %s alert ≥ %s%%\n", alert.Label, alert.Threshold.String()))
	}

	builder.WriteString(fmt.Sprintf("\n_Timestamp: %s UTC_", now.UTC().Format("2006-01-02 15:04")))
	return builder.String()
}

// FormatUSD renders a price as currency with two decimals and thousands
// separators, e.g. $2,050.00.
func FormatUSD(price decimal.Decimal) string {
	fixed := price.StringFixed(2)

	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign = "-"
		fixed = strings.TrimPrefix(fixed, "-")
	}

	parts := strings.SplitN(fixed, ".", 2)
	intPart, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return sign + "$" + fixed
	}

	return fmt.Sprintf("%s$%s.%s", sign, humanize.Comma(intPart), parts[1])
}
