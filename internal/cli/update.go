package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateTask string

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run a single price update task",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateTask == "" {
			return fmt.Errorf("--task must be provided (commodities, fx, or platinum)")
		}
		return getApp().UpdatePrices(cmd.Context(), updateTask)
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateTask, "task", "", "Update task to run: commodities, fx, or platinum")
}
