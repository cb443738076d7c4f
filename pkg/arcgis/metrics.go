package arcgis

import "github.com/prometheus/client_golang/prometheus"

// Call outcomes recorded by Metrics.
const (
	OutcomeSuccess        = "success"
	OutcomeError          = "error"
	OutcomeNotImplemented = "not_implemented"
)

// unknownMethod labels calls that were not implemented, so arbitrary
// method names from the host do not create new series.
const unknownMethod = "unknown"

// Metrics collects bridge counters. A nil *Metrics records nothing.
type Metrics struct {
	calls           *prometheus.CounterVec
	disposeFailures *prometheus.CounterVec
	sessions        prometheus.Gauge
	views           *prometheus.GaugeVec
}

// NewMetrics creates the bridge collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcgis",
			Subsystem: "bridge",
			Name:      "calls_total",
			Help:      "Method calls answered by the bridge, by channel, method and outcome.",
		}, []string{"channel", "method", "outcome"}),
		disposeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcgis",
			Subsystem: "bridge",
			Name:      "dispose_failures_total",
			Help:      "Controller dispose calls that failed or panicked.",
		}, []string{"controller"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arcgis",
			Subsystem: "bridge",
			Name:      "attached_sessions",
			Help:      "Plugin sessions currently attached to an engine.",
		}),
		views: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arcgis",
			Subsystem: "bridge",
			Name:      "live_views",
			Help:      "Map and scene views currently alive, by view type.",
		}, []string{"view_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.calls, m.disposeFailures, m.sessions, m.views)
	}
	return m
}

func (m *Metrics) observeCall(channel, method, outcome string) {
	if m == nil {
		return
	}
	if outcome == OutcomeNotImplemented {
		method = unknownMethod
	}
	m.calls.WithLabelValues(channel, method, outcome).Inc()
}

func (m *Metrics) disposeFailed(controller string) {
	if m == nil {
		return
	}
	m.disposeFailures.WithLabelValues(controller).Inc()
}

func (m *Metrics) sessionAttached() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) sessionDetached() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) viewCreated(viewType string) {
	if m != nil {
		m.views.WithLabelValues(viewType).Inc()
	}
}

func (m *Metrics) viewDisposed(viewType string) {
	if m != nil {
		m.views.WithLabelValues(viewType).Dec()
	}
}
