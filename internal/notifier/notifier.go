// Package notifier delivers trigger events to their destination channel.
package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
)

// Notifier 定义触发事件的投递接口。
type Notifier interface {
	Send(ctx context.Context, event domain.TriggerEvent) error
}

// ConsoleNotifier 将告警写到进程输出, 适合开发环境。
type ConsoleNotifier struct {
	out    io.Writer
	logger zerolog.Logger
}

// NewConsoleNotifier 构造控制台告警器。out 为空时写到标准输出。
func NewConsoleNotifier(out io.Writer, logger zerolog.Logger) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{
		out:    out,
		logger: logger.With().Str("component", "notify_console").Logger(),
	}
}

// Send 输出一条告警文本。
func (n *ConsoleNotifier) Send(ctx context.Context, event domain.TriggerEvent) error {
	if _, err := fmt.Fprintln(n.out, renderMessage(event)); err != nil {
		return fmt.Errorf("write console notification: %w", err)
	}
	n.logger.Info().
		Int64("alert_id", event.AlertID).
		Str("symbol", event.Symbol).
		Msg("告警已发送 (console)")
	return nil
}

func renderMessage(event domain.TriggerEvent) string {
	builder := strings.Builder{}
	builder.WriteString("[Stock Alert]\n")
	builder.WriteString(fmt.Sprintf("Symbol: %s\n", event.Symbol))
	builder.WriteString(fmt.Sprintf("Price: %s\n", event.Price.String()))
	builder.WriteString(fmt.Sprintf("Fired: %s UTC\n", event.FiredAt.UTC().Format(time.RFC3339)))
	if event.Owner != "" {
		builder.WriteString(fmt.Sprintf("Owner: %s\n", event.Owner))
	}
	builder.WriteString(fmt.Sprintf("Episode: %s", event.EpisodeID))
	return builder.String()
}

var _ Notifier = (*ConsoleNotifier)(nil)
