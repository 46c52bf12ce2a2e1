package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate alert windows once and send triggered alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		fired, err := getApp().EvaluateAlerts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "alerts fired: %d\n", fired)
		return nil
	},
}
