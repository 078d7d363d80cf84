package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yahiasherif002/stock-alerts-project/internal/app"
)

var triggersLimit int

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Display recent trigger events and their delivery status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if triggersLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Triggers(cmd.Context(), app.TriggersOptions{Limit: triggersLimit})
	},
}

func init() {
	triggersCmd.Flags().IntVar(&triggersLimit, "limit", 20, "Number of trigger events to display")
}
