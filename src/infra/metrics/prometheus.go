package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandai/pkbattle/src/domain/battle"
)

// Battle exports lifecycle, gift and settlement metrics. It satisfies the
// metrics hooks of the battles and settlement services.
type Battle struct {
	transitions   *prometheus.CounterVec
	gifts         *prometheus.CounterVec
	giftValue     *prometheus.CounterVec
	settlements   *prometheus.CounterVec
	payoutFailure *prometheus.CounterVec
	timers        prometheus.Gauge
}

func NewBattle(reg prometheus.Registerer) *Battle {
	m := &Battle{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "battle",
			Name:      "transitions_total",
			Help:      "Battle status transitions",
		}, []string{"from", "to"}),
		gifts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "battle",
			Name:      "gifts_total",
			Help:      "Gifts applied to active battles",
		}, []string{"type"}),
		giftValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "battle",
			Name:      "gift_value_total",
			Help:      "Score added by gifts",
		}, []string{"type"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "settlement",
			Name:      "settled_total",
			Help:      "Battles fully settled by outcome",
		}, []string{"type", "outcome"}),
		payoutFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pkbattle",
			Subsystem: "settlement",
			Name:      "payout_failures_total",
			Help:      "Reward credits rejected by the ledger",
		}, []string{"role"}),
		timers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pkbattle",
			Subsystem: "battle",
			Name:      "pending_timers",
			Help:      "Countdown, end and invite expiry timers currently armed",
		}),
	}
	reg.MustRegister(m.transitions, m.gifts, m.giftValue, m.settlements, m.payoutFailure, m.timers)
	return m
}

func (m *Battle) Transition(from, to battle.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Battle) GiftApplied(typ battle.Type, value int64) {
	m.gifts.WithLabelValues(string(typ)).Inc()
	m.giftValue.WithLabelValues(string(typ)).Add(float64(value))
}

func (m *Battle) TimersPending(n int64) {
	m.timers.Set(float64(n))
}

func (m *Battle) BattleSettled(typ battle.Type, outcome battle.Outcome) {
	m.settlements.WithLabelValues(string(typ), string(outcome)).Inc()
}

func (m *Battle) PayoutFailed(role string) {
	m.payoutFailure.WithLabelValues(role).Inc()
}
