package evaluate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Yahiasherif002/stock-alerts-project/internal/domain"
	"github.com/Yahiasherif002/stock-alerts-project/internal/storage"
)

var evalBase = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type harness struct {
	repo *storage.Memory
	ev   *Evaluator
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{repo: storage.NewMemory(), now: evalBase}
	h.ev = New(h.repo, Options{Workers: 1}, zerolog.Nop())
	h.ev.clock = func() time.Time { return h.now }
	return h
}

func (h *harness) createAlert(t *testing.T, alert domain.Alert) domain.Alert {
	t.Helper()
	alert.Active = true
	created, err := h.repo.CreateAlert(context.Background(), alert)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return created
}

func (h *harness) setPrice(t *testing.T, symbol, price string) {
	t.Helper()
	err := h.repo.UpsertLatestPrice(context.Background(), domain.PriceSample{
		Symbol:     symbol,
		Price:      decimal.RequireFromString(price),
		ObservedAt: h.now,
		Source:     "test",
	})
	if err != nil {
		t.Fatalf("set price: %v", err)
	}
}

func (h *harness) cycle(t *testing.T) CycleResult {
	t.Helper()
	result, err := h.ev.RunCycle(context.Background(), h.now)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	return result
}

func (h *harness) step(d time.Duration) { h.now = h.now.Add(d) }

func TestThresholdFiresOncePerEpisode(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Owner:     "ops",
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("200.00"),
	})

	var emitted []domain.TriggerEvent
	for _, price := range []string{"195", "201", "205", "198"} {
		h.setPrice(t, "AAPL", price)
		result := h.cycle(t)
		emitted = append(emitted, result.Emitted...)
		h.step(2 * time.Minute)
	}

	if len(emitted) != 1 {
		t.Fatalf("想要恰好 1 次触发, 实际 %d", len(emitted))
	}
	event := emitted[0]
	if event.Price.Cmp(decimal.RequireFromString("201")) != 0 {
		t.Fatalf("应在 201 样本触发, 实际价格 %s", event.Price)
	}
	if event.AlertID != alert.ID || event.Symbol != "AAPL" || event.Owner != "ops" {
		t.Fatalf("事件字段不正确: %+v", event)
	}

	// The false observation re-armed the alert.
	state, err := h.repo.GetAlertState(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("state missing: %v", err)
	}
	if state.Phase() != domain.PhaseIdle {
		t.Fatalf("价格回落后应回到 idle, 实际 %s", state.Phase())
	}
}

func TestThresholdReFiresAsNewEpisode(t *testing.T) {
	h := newHarness(t)
	h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("200"),
	})

	var emitted []domain.TriggerEvent
	for _, price := range []string{"201", "198", "205"} {
		h.setPrice(t, "AAPL", price)
		result := h.cycle(t)
		emitted = append(emitted, result.Emitted...)
		h.step(2 * time.Minute)
	}

	if len(emitted) != 2 {
		t.Fatalf("两个独立片段应触发 2 次, 实际 %d", len(emitted))
	}
	if emitted[0].EpisodeID == emitted[1].EpisodeID {
		t.Fatal("不同片段不应共享 episode id")
	}
}

func TestThresholdBoundaryEquality(t *testing.T) {
	h := newHarness(t)
	h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAtOrAbove,
		Threshold: decimal.RequireFromString("200.00"),
	})

	h.setPrice(t, "AAPL", "200.00")
	result := h.cycle(t)
	if result.Fired != 1 {
		t.Fatalf(">= 在相等时应触发, 实际 %d", result.Fired)
	}
}

func TestDurationFiresOnlyAfterElapsed(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "TSLA",
		Kind:      domain.KindDuration,
		Condition: domain.CondBelow,
		Threshold: decimal.RequireFromString("150.00"),
		Duration:  10 * time.Minute,
	})

	start := h.now
	var emitted []domain.TriggerEvent
	for i := 0; i < 6; i++ {
		h.setPrice(t, "TSLA", "140")
		result := h.cycle(t)
		emitted = append(emitted, result.Emitted...)
		if i < 5 && len(emitted) != 0 {
			t.Fatalf("第 %d 个周期不应触发 (elapsed %s)", i, h.now.Sub(start))
		}
		h.step(2 * time.Minute)
	}

	if len(emitted) != 1 {
		t.Fatalf("想要恰好 1 次触发, 实际 %d", len(emitted))
	}
	event := emitted[0]
	if want := start.Add(10 * time.Minute); !event.FiredAt.Equal(want) {
		t.Fatalf("fired_at 应为满足时的当前周期 %s, 实际 %s", want, event.FiredAt)
	}
	if event.EpisodeID != domain.EpisodeID(alert.ID, start) {
		t.Fatal("episode id 应由 pending_since 推导")
	}
}

func TestDurationResetDiscardsPartialCredit(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "TSLA",
		Kind:      domain.KindDuration,
		Condition: domain.CondBelow,
		Threshold: decimal.RequireFromString("150"),
		Duration:  10 * time.Minute,
	})

	// true, true, false, then true again: the timer must restart.
	var emitted []domain.TriggerEvent
	var restart time.Time
	for i, price := range []string{"140", "140", "160", "140"} {
		h.setPrice(t, "TSLA", price)
		result := h.cycle(t)
		emitted = append(emitted, result.Emitted...)
		if i == 3 {
			restart = h.now
		}
		h.step(2 * time.Minute)
	}
	if len(emitted) != 0 {
		t.Fatalf("重置后不应已触发, 实际 %d", len(emitted))
	}

	state, err := h.repo.GetAlertState(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("state missing: %v", err)
	}
	if state.PendingSince == nil || !state.PendingSince.Equal(restart) {
		t.Fatalf("pending_since 应从重新满足的周期重新计时, 实际 %v", state.PendingSince)
	}

	// Ten more minutes of true completes the restarted window.
	for i := 0; i < 5; i++ {
		h.setPrice(t, "TSLA", "140")
		result := h.cycle(t)
		emitted = append(emitted, result.Emitted...)
		h.step(2 * time.Minute)
	}
	if len(emitted) != 1 {
		t.Fatalf("重启后的窗口应触发一次, 实际 %d", len(emitted))
	}
	if emitted[0].EpisodeID != domain.EpisodeID(alert.ID, restart) {
		t.Fatal("episode id 应由重启后的 pending_since 推导")
	}
}

func TestMissingPriceSkipsWithoutStateChange(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "NVDA",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("100"),
	})

	result := h.cycle(t)
	if result.Skipped != 1 || result.Evaluated != 0 {
		t.Fatalf("缺少价格时应跳过: %+v", result)
	}

	if _, err := h.repo.GetAlertState(context.Background(), alert.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("跳过时不应创建状态: %v", err)
	}
}

func TestMissingPricePreservesPendingState(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "TSLA",
		Kind:      domain.KindDuration,
		Condition: domain.CondBelow,
		Threshold: decimal.RequireFromString("150"),
		Duration:  10 * time.Minute,
	})

	pendingStart := evalBase.Add(-4 * time.Minute)
	if err := h.repo.SaveAlertState(context.Background(), domain.AlertState{
		AlertID:      alert.ID,
		PendingSince: &pendingStart,
		UpdatedAt:    pendingStart,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	// The projection holds nothing for TSLA, as after a degraded cycle
	// on a fresh deployment.
	result := h.cycle(t)
	if result.Skipped != 1 {
		t.Fatalf("缺少价格时应跳过: %+v", result)
	}

	state, err := h.repo.GetAlertState(context.Background(), alert.ID)
	if err != nil {
		t.Fatalf("state missing: %v", err)
	}
	if state.PendingSince == nil || !state.PendingSince.Equal(pendingStart) {
		t.Fatalf("pending_since 不应被跳过的周期改动: %v", state.PendingSince)
	}
}

func TestInactiveAlertIsInvisibleButStateSurvives(t *testing.T) {
	h := newHarness(t)
	created, err := h.repo.CreateAlert(context.Background(), domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindDuration,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("100"),
		Duration:  10 * time.Minute,
		Active:    false,
	})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	pending := evalBase.Add(-4 * time.Minute)
	if err := h.repo.SaveAlertState(context.Background(), domain.AlertState{
		AlertID:      created.ID,
		PendingSince: &pending,
		UpdatedAt:    pending,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	h.setPrice(t, "AAPL", "150")
	result := h.cycle(t)
	if result.Evaluated != 0 || result.Fired != 0 {
		t.Fatalf("停用的告警不应被评估: %+v", result)
	}

	state, err := h.repo.GetAlertState(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("state missing: %v", err)
	}
	if state.PendingSince == nil || !state.PendingSince.Equal(pending) {
		t.Fatalf("停用期间状态应原样保留: %v", state.PendingSince)
	}
}

func TestPendingContinuesAcrossRestart(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "TSLA",
		Kind:      domain.KindDuration,
		Condition: domain.CondBelow,
		Threshold: decimal.RequireFromString("150"),
		Duration:  10 * time.Minute,
	})

	// State written by a previous process twelve minutes ago.
	pending := evalBase.Add(-12 * time.Minute)
	if err := h.repo.SaveAlertState(context.Background(), domain.AlertState{
		AlertID:      alert.ID,
		PendingSince: &pending,
		UpdatedAt:    pending,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	h.setPrice(t, "TSLA", "140")
	result := h.cycle(t)
	if result.Fired != 1 {
		t.Fatalf("重启后已满足的窗口应立即触发: %+v", result)
	}
	if result.Emitted[0].EpisodeID != domain.EpisodeID(alert.ID, pending) {
		t.Fatal("重启后的触发应沿用原 pending_since 的 episode id")
	}
}

func TestFiredStateSurvivesRestartWithoutReEmit(t *testing.T) {
	h := newHarness(t)
	alert := h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("200"),
	})

	fired := evalBase.Add(-30 * time.Minute)
	if err := h.repo.SaveAlertState(context.Background(), domain.AlertState{
		AlertID:         alert.ID,
		PendingSince:    &fired,
		LastTriggeredAt: &fired,
		UpdatedAt:       fired,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	h.setPrice(t, "AAPL", "205")
	result := h.cycle(t)
	if result.Fired != 0 {
		t.Fatalf("重启后仍为 fired 的告警不应重复触发: %+v", result)
	}
}

func TestDurationWithNonPositiveDurationIsAlertError(t *testing.T) {
	h := newHarness(t)
	h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindDuration,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("100"),
		Duration:  0,
	})
	h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.CondAbove,
		Threshold: decimal.RequireFromString("100"),
	})

	h.setPrice(t, "AAPL", "150")
	result := h.cycle(t)
	if result.Failed != 1 {
		t.Fatalf("非法 duration 应计为该告警的错误: %+v", result)
	}
	if result.Fired != 1 {
		t.Fatal("其余告警应不受影响继续评估")
	}
}

func TestUnknownConditionIsAlertError(t *testing.T) {
	h := newHarness(t)
	h.createAlert(t, domain.Alert{
		Symbol:    "AAPL",
		Kind:      domain.KindThreshold,
		Condition: domain.Condition("!!"),
		Threshold: decimal.RequireFromString("100"),
	})

	h.setPrice(t, "AAPL", "150")
	result := h.cycle(t)
	if result.Failed != 1 || result.Fired != 0 {
		t.Fatalf("未知条件应隔离为该告警的错误: %+v", result)
	}
}
