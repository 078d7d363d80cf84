package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yahiasherif002/stock-alerts-project/internal/app"
)

var (
	showSymbol string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display latest prices, or recent samples for one symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Symbol: showSymbol,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Show recent samples for this symbol only")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
