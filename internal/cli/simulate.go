package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Yahiasherif002/stock-alerts-project/internal/app"
	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

var (
	simulateSymbol    string
	simulatePrice     float64
	simulateThreshold float64
	simulateCondition string
	simulateKind      string
	simulateDuration  time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次告警触发与投递, 不访问数据库",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol 必须提供")
		}
		if simulatePrice <= 0 || simulateThreshold <= 0 {
			return errors.New("--price 与 --threshold 必须大于 0")
		}

		var kind domain.AlertKind
		switch strings.ToLower(simulateKind) {
		case "threshold":
			kind = domain.KindThreshold
		case "duration":
			kind = domain.KindDuration
		default:
			return fmt.Errorf("未知的告警类型 %q", simulateKind)
		}

		opts := app.SimulateOptions{
			Symbol:    simulateSymbol,
			Price:     decimal.NewFromFloat(simulatePrice),
			Threshold: decimal.NewFromFloat(simulateThreshold),
			Condition: domain.Condition(simulateCondition),
			Kind:      kind,
			Duration:  simulateDuration,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "标的代码, 例如 AAPL")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "模拟的当前价格")
	simulateCmd.Flags().Float64Var(&simulateThreshold, "threshold", 0, "告警阈值价格")
	simulateCmd.Flags().StringVar(&simulateCondition, "condition", ">", "比较条件 (>, <, >=, <=)")
	simulateCmd.Flags().StringVar(&simulateKind, "kind", "threshold", "告警类型 (threshold 或 duration)")
	simulateCmd.Flags().DurationVar(&simulateDuration, "duration", 0, "duration 告警的持续时间, 例如 30m")
}
