package cli

import (
	"github.com/spf13/cobra"

	"github.com/Yahiasherif002/stock-alerts-project/internal/app"
)

var seedAlertsOwner string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply the schema and load the configured symbol universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Seed(cmd.Context(), app.SeedOptions{AlertsOwner: seedAlertsOwner})
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAlertsOwner, "alerts-owner", "", "Also create sample alerts owned by this user")
}
