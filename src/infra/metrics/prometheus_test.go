package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandai/pkbattle/src/domain/battle"
	"github.com/sandai/pkbattle/src/infra/metrics"
)

func TestBattle_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBattle(reg)

	m.Transition(battle.StatusWaiting, battle.StatusCountdown)
	m.Transition(battle.StatusWaiting, battle.StatusCountdown)
	m.GiftApplied(battle.TypeQuick, 25)
	m.GiftApplied(battle.TypeQuick, 5)
	m.TimersPending(3)
	m.BattleSettled(battle.TypeRanked, battle.OutcomeDraw)
	m.PayoutFailed("loser")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 6 {
		t.Errorf("metric families = %d, want 6", len(families))
	}
	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[f.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	want := map[string]float64{
		"pkbattle_battle_transitions_total":         2,
		"pkbattle_battle_gifts_total":               2,
		"pkbattle_battle_gift_value_total":          30,
		"pkbattle_battle_pending_timers":            3,
		"pkbattle_settlement_settled_total":         1,
		"pkbattle_settlement_payout_failures_total": 1,
	}
	for name, v := range want {
		if values[name] != v {
			t.Errorf("%s = %v, want %v", name, values[name], v)
		}
	}
}

func TestNewBattle_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewBattle(reg)
	defer func() {
		if recover() == nil {
			t.Errorf("NewBattle() on the same registry did not panic")
		}
	}()
	metrics.NewBattle(reg)
}
