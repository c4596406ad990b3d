package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dashboard's self-instrumentation, served on /metrics
type Metrics struct {
	refreshes *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	stale     *prometheus.CounterVec
	wsClients prometheus.Gauge
}

// NewMetrics registers the dashboard collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autogrow_refresh_total",
			Help: "Refresh operations by target and result.",
		}, []string{"target", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autogrow_refresh_duration_seconds",
			Help:    "Duration of refresh operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"target"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autogrow_stale_responses_total",
			Help: "Responses discarded because newer content was already shown.",
		}, []string{"target"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autogrow_ws_clients",
			Help: "Connected websocket clients.",
		}),
	}
	reg.MustRegister(m.refreshes, m.duration, m.stale, m.wsClients)
	return m
}

func (m *Metrics) observe(target string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.refreshes.WithLabelValues(target, result).Inc()
	m.duration.WithLabelValues(target).Observe(time.Since(start).Seconds())
}

func (m *Metrics) staleResponse(target string) {
	m.stale.WithLabelValues(target).Inc()
}

// ClientConnected tracks a websocket client until the returned function is called
func (m *Metrics) ClientConnected() func() {
	m.wsClients.Inc()
	return m.wsClients.Dec
}
