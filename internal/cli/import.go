package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"metalwatch/internal/app"
)

var (
	importFile   string
	importCutoff string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Backfill historical prices from a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importFile == "" {
			return fmt.Errorf("--file must be provided")
		}
		if importCutoff == "" {
			return fmt.Errorf("--cutoff must be provided")
		}

		cutoff, err := time.Parse(time.RFC3339, importCutoff)
		if err != nil {
			return fmt.Errorf("invalid --cutoff value: %w", err)
		}

		opts := app.ImportOptions{
			Path:   importFile,
			Cutoff: cutoff,
		}

		return getApp().Import(cmd.Context(), opts)
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "Path to the CSV file")
	importCmd.Flags().StringVar(&importCutoff, "cutoff", "", "Rows at or after this RFC3339 timestamp are skipped")
}
