package cli

import (
	"github.com/spf13/cobra"

	"github.com/Yahiasherif002/stock-alerts-project/internal/app"
)

var (
	cleanupDays    int
	cleanupSamples bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old trigger events and optionally price samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.CleanupOptions{
			Days:    cleanupDays,
			Samples: cleanupSamples,
		}
		return getApp().Cleanup(cmd.Context(), opts)
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Remove records older than this many days")
	cleanupCmd.Flags().BoolVar(&cleanupSamples, "samples", false, "Also prune price history samples")
}
