// ABOUTME: Counters and gauges for applied events, lifecycle actions and pending changes
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "treesync"

// Metrics holds the collectors. The zero value is not usable; use New.
type Metrics struct {
	registry *prometheus.Registry

	eventsApplied    *prometheus.CounterVec
	eventsSuppressed *prometheus.CounterVec
	lifecycleActions *prometheus.CounterVec
	pendingChanges   prometheus.Gauge
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Change events merged into the cache, by mutation kind and target shape.",
		}, []string{"kind", "shape"}),
		eventsSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_suppressed_total",
			Help:      "Change events that produced no mutation, by kind.",
		}, []string{"kind"}),
		lifecycleActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_actions_total",
			Help:      "Lifecycle callbacks run, by milestone and result.",
		}, []string{"milestone", "result"}),
		pendingChanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_local_changes",
			Help:      "Optimistic local changes still waiting on a confirmation or rollback.",
		}),
	}
	m.registry.MustRegister(m.eventsApplied, m.eventsSuppressed, m.lifecycleActions, m.pendingChanges)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EventApplied counts one merged event.
func (m *Metrics) EventApplied(kind, shape string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(kind, shape).Inc()
}

// EventSuppressed counts one event that produced no mutation.
func (m *Metrics) EventSuppressed(kind string) {
	if m == nil {
		return
	}
	m.eventsSuppressed.WithLabelValues(kind).Inc()
}

// LifecyclePass counts the outcome of every action selected in one pass.
func (m *Metrics) LifecyclePass(milestone string, selected, failed int) {
	if m == nil {
		return
	}
	m.lifecycleActions.WithLabelValues(milestone, "ok").Add(float64(selected - failed))
	if failed > 0 {
		m.lifecycleActions.WithLabelValues(milestone, "failed").Add(float64(failed))
	}
}

// SetPending records the number of unresolved local changes.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingChanges.Set(float64(n))
}

// WriteTextfile writes every collector to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
