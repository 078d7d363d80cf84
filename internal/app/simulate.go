package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Yahiasherif002/stock-alerts-project/internal/dispatch"
	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/evaluate"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

// SimulateAlert 在内存仓库里跑通一次完整触发链路: 创建告警, 注入静态
// 价格, 评估并投递, 不触碰真实数据库。Duration 告警把 PendingSince 回拨
// 到 now-duration, 当前价格满足条件即触发。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !opts.Condition.Valid() {
		return fmt.Errorf("未知的比较条件 %q", opts.Condition)
	}
	if opts.Kind == "" {
		opts.Kind = domain.KindThreshold
	}
	if opts.Kind != domain.KindThreshold && opts.Kind != domain.KindDuration {
		return fmt.Errorf("未知的告警类型 %q", opts.Kind)
	}
	if opts.Kind == domain.KindDuration && opts.Duration <= 0 {
		return errors.New("duration 告警必须提供正的 --duration")
	}

	repo := storage.NewMemory()
	if err := repo.UpsertSymbol(ctx, domain.Symbol{Symbol: opts.Symbol, Name: opts.Symbol, Active: true}); err != nil {
		return err
	}
	alert, err := repo.CreateAlert(ctx, domain.Alert{
		Owner:     "simulated",
		Symbol:    opts.Symbol,
		Kind:      opts.Kind,
		Condition: opts.Condition,
		Threshold: opts.Threshold,
		Duration:  opts.Duration,
		Active:    true,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	sample := domain.PriceSample{Symbol: opts.Symbol, Price: opts.Price, ObservedAt: now, Source: "simulated"}
	if err := repo.InsertPriceSample(ctx, sample); err != nil {
		return err
	}
	if err := repo.UpsertLatestPrice(ctx, sample); err != nil {
		return err
	}

	if opts.Kind == domain.KindDuration {
		pending := now.Add(-opts.Duration)
		state := domain.AlertState{AlertID: alert.ID, PendingSince: &pending, UpdatedAt: now}
		if err := repo.SaveAlertState(ctx, state); err != nil {
			return err
		}
	}

	evaluator := evaluate.New(repo, evaluate.Options{Workers: 1}, a.Logger)
	dispatcher := dispatch.New(repo, a.newNotifier(), dispatch.Options{
		MaxAttempts:    a.Config.Dispatch.MaxAttempts,
		InitialBackoff: a.Config.Dispatch.InitialBackoff,
		MaxBackoff:     a.Config.Dispatch.MaxBackoff,
	}, a.Logger)

	result, err := evaluator.RunCycle(ctx, now)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return errors.New("模拟评估失败, 请检查告警参数")
	}
	if result.Fired == 0 {
		a.Logger.Info().
			Str("symbol", opts.Symbol).
			Str("price", opts.Price.String()).
			Str("threshold", opts.Threshold.String()).
			Msg("条件未满足, 未触发告警")
		return nil
	}

	var failed bool
	for _, event := range result.Emitted {
		if err := dispatcher.Dispatch(ctx, event); err != nil {
			a.Logger.Error().Err(err).Str("episode_id", event.EpisodeID.String()).Msg("模拟投递失败")
			failed = true
		}
	}
	if failed {
		return errors.New("模拟告警投递失败, 请检查通知配置")
	}
	return nil
}
