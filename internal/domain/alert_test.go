package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestConditionHolds(t *testing.T) {
	price := decimal.RequireFromString("200.00")

	cases := []struct {
		cond      Condition
		threshold string
		want      bool
	}{
		{CondAbove, "199.99", true},
		{CondAbove, "200.00", false},
		{CondBelow, "200.01", true},
		{CondBelow, "200.00", false},
		{CondAtOrAbove, "200.00", true},
		{CondAtOrAbove, "200.01", false},
		{CondAtOrBelow, "200.00", true},
		{CondAtOrBelow, "199.99", false},
	}

	for _, tc := range cases {
		got := tc.cond.Holds(price, decimal.RequireFromString(tc.threshold))
		if got != tc.want {
			t.Errorf("Holds(200.00 %s %s) = %v, want %v", tc.cond, tc.threshold, got, tc.want)
		}
	}
}

func TestConditionHoldsExactDecimal(t *testing.T) {
	// 200 and 200.000 compare equal regardless of representation.
	if CondAbove.Holds(decimal.RequireFromString("200.000"), decimal.RequireFromString("200")) {
		t.Fatal("200.000 > 200 should be false")
	}
	if !CondAtOrAbove.Holds(decimal.RequireFromString("200.000"), decimal.RequireFromString("200")) {
		t.Fatal("200.000 >= 200 should be true")
	}
}

func TestConditionValid(t *testing.T) {
	for _, c := range []Condition{CondAbove, CondBelow, CondAtOrAbove, CondAtOrBelow} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if Condition("==").Valid() {
		t.Error("== should not be valid")
	}
}

func TestAlertStatePhase(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-time.Minute)

	idle := AlertState{AlertID: 1}
	if idle.Phase() != PhaseIdle {
		t.Fatalf("nil pending_since should be IDLE, got %s", idle.Phase())
	}

	pending := AlertState{AlertID: 1, PendingSince: &now}
	if pending.Phase() != PhasePending {
		t.Fatalf("pending_since without trigger should be PENDING, got %s", pending.Phase())
	}

	// Triggered before the current episode began: still PENDING.
	stale := AlertState{AlertID: 1, PendingSince: &now, LastTriggeredAt: &earlier}
	if stale.Phase() != PhasePending {
		t.Fatalf("old trigger should not mark new episode FIRED, got %s", stale.Phase())
	}

	fired := AlertState{AlertID: 1, PendingSince: &earlier, LastTriggeredAt: &now}
	if fired.Phase() != PhaseFired {
		t.Fatalf("trigger within episode should be FIRED, got %s", fired.Phase())
	}

	// Threshold alerts set both to the same instant on firing.
	same := AlertState{AlertID: 1, PendingSince: &now, LastTriggeredAt: &now}
	if same.Phase() != PhaseFired {
		t.Fatalf("equal timestamps should be FIRED, got %s", same.Phase())
	}
}
