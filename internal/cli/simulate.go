package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"metalwatch/internal/app"
)

var (
	simulateSymbol string
	simulateOld    float64
	simulateNew    float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格波动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulateOld <= 0 || simulateNew <= 0 {
			return errors.New("--old 与 --new 必须大于 0")
		}

		opts := app.SimulateOptions{
			Symbol:   simulateSymbol,
			OldPrice: decimal.NewFromFloat(simulateOld),
			NewPrice: decimal.NewFromFloat(simulateNew),
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Instrument symbol")
	simulateCmd.Flags().Float64Var(&simulateOld, "old", 0, "历史对比价 (USD)")
	simulateCmd.Flags().Float64Var(&simulateNew, "new", 0, "当前价 (USD)")
}
