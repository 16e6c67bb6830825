// Package metrics exposes Prometheus counters for gate activity.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/event-gate/internal/model"
)

// Resolve and check-in outcomes.
const (
	OutcomeOne         = "one"
	OutcomeNone        = "none"
	OutcomeMany        = "many"
	OutcomeEmpty       = "empty"
	OutcomeStoreError  = "store_error"
	OutcomeSuccess     = "success"
	OutcomeDuplicate   = "already_checked_in"
	OutcomeNoUsher     = "usher_required"
	OutcomeUnknownSlot = "guest_not_found"
)

// Gate records resolver, ledger and change-feed activity.  A nil *Gate is
// valid and records nothing.
type Gate struct {
	resolves *prometheus.CounterVec
	checkins *prometheus.CounterVec
	feed     *prometheus.CounterVec
}

// NewGate registers the gate metrics on the provided registerer.
func NewGate(reg prometheus.Registerer) *Gate {
	if reg == nil {
		return &Gate{}
	}
	resolves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_resolve_total",
		Help: "Purchase resolutions by outcome.",
	}, []string{"outcome"})
	checkins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_checkin_total",
		Help: "Guest check-in attempts by outcome.",
	}, []string{"outcome"})
	feed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gate_feed_events_total",
		Help: "Change-feed events delivered to subscribers by table and type.",
	}, []string{"table", "type"})
	reg.MustRegister(resolves, checkins, feed)
	return &Gate{resolves: resolves, checkins: checkins, feed: feed}
}

func (g *Gate) ObserveResolve(outcome string) {
	if g == nil || g.resolves == nil {
		return
	}
	g.resolves.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (g *Gate) ObserveCheckIn(outcome string) {
	if g == nil || g.checkins == nil {
		return
	}
	g.checkins.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (g *Gate) ObserveFeedEvent(table string, t model.ChangeType) {
	if g == nil || g.feed == nil {
		return
	}
	g.feed.WithLabelValues(normalizeLabel(table), normalizeLabel(string(t))).Inc()
}

func normalizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
