package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the reconciliation loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal            *prometheus.CounterVec
	CycleDuration          prometheus.Histogram
	TicksSkipped           *prometheus.CounterVec
	RecordsProcessed       *prometheus.CounterVec
	EventsDropped          *prometheus.CounterVec
	CheckpointLag          prometheus.Gauge
	ProfileRefreshDropped  prometheus.Counter
	ProfileRefreshFailures prometheus.Counter
}

// New registers metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers metrics with reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credsync_cycles_total",
			Help: "Total number of reconciliation cycles by result (ok, noop, aborted, panic)",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "credsync_cycle_duration_seconds",
			Help:    "Wall time of a reconciliation cycle",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		TicksSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credsync_ticks_skipped_total",
			Help: "Scheduler ticks skipped by reason (overlap, lock)",
		}, []string{"reason"}),
		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credsync_records_processed_total",
			Help: "Records processed by outcome (success, failed, skipped)",
		}, []string{"outcome"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "credsync_events_dropped_total",
			Help: "Feed events dropped before processing by reason",
		}, []string{"reason"}),
		CheckpointLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "credsync_checkpoint_lag_seconds",
			Help: "Seconds between now and the last processed watermark",
		}),
		ProfileRefreshDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "credsync_profile_refresh_dropped_total",
			Help: "Profile refresh requests dropped because the queue was full",
		}),
		ProfileRefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "credsync_profile_refresh_failures_total",
			Help: "Profile refresh requests that failed downstream",
		}),
	}
}

func (m *Metrics) IncCycle(result string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCycleDuration(seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
}

func (m *Metrics) IncTickSkipped(reason string) {
	if m == nil {
		return
	}
	m.TicksSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRecord(outcome string) {
	if m == nil {
		return
	}
	m.RecordsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddEventsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) SetCheckpointLag(seconds float64) {
	if m == nil {
		return
	}
	m.CheckpointLag.Set(seconds)
}

func (m *Metrics) IncProfileRefreshDropped() {
	if m == nil {
		return
	}
	m.ProfileRefreshDropped.Inc()
}

func (m *Metrics) IncProfileRefreshFailures() {
	if m == nil {
		return
	}
	m.ProfileRefreshFailures.Inc()
}
