// Package metrics exposes the gateway's Prometheus counters and gauges:
// connects, publishes, retries and the timing wheel's depth, the signals an
// operator watches to tell a healthy gateway from a struggling one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway holds every metric the dispatcher and transport layer update.
type Gateway struct {
	ActiveSessions   prometheus.Gauge
	ConnectsTotal    prometheus.Counter
	ConnectsRejected prometheus.Counter
	PublishesTotal   prometheus.Counter
	RetriesTotal     prometheus.Counter
	SessionsLost     prometheus.Counter
	WheelDepth       prometheus.Gauge
	PacketsRead      prometheus.Counter
	BytesRead        prometheus.Counter
	PacketsWritten   prometheus.Counter
	BytesWritten     prometheus.Counter
}

// New constructs a Gateway's metrics, unregistered until Register is called.
func New() *Gateway {
	return &Gateway{
		ActiveSessions:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttsn_active_sessions", Help: "Number of sessions currently indexed in memory"}),
		ConnectsTotal:    prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_connects_total", Help: "Total CONNECT packets accepted"}),
		ConnectsRejected: prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_connects_rejected_total", Help: "Total CONNECT packets rejected by the authenticator"}),
		PublishesTotal:   prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_publishes_total", Help: "Total PUBLISH packets accepted"}),
		RetriesTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_retries_total", Help: "Total QoS1/2 retransmissions fired by the timing wheel"}),
		SessionsLost:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_sessions_lost_total", Help: "Total sessions transitioned to LOST"}),
		WheelDepth:       prometheus.NewGauge(prometheus.GaugeOpts{Name: "mqttsn_wheel_depth", Help: "Number of entries currently armed in the timing wheel"}),
		PacketsRead:      prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_packets_read_total", Help: "Total UDP datagrams read"}),
		BytesRead:        prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_bytes_read_total", Help: "Total UDP bytes read"}),
		PacketsWritten:   prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_packets_written_total", Help: "Total UDP datagrams written"}),
		BytesWritten:     prometheus.NewCounter(prometheus.CounterOpts{Name: "mqttsn_bytes_written_total", Help: "Total UDP bytes written"}),
	}
}

// Register registers every metric against reg. Safe to call once per
// process; a second Gateway sharing the default registry will panic on
// re-registration, same as any other Prometheus collector.
func (g *Gateway) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		g.ActiveSessions,
		g.ConnectsTotal,
		g.ConnectsRejected,
		g.PublishesTotal,
		g.RetriesTotal,
		g.SessionsLost,
		g.WheelDepth,
		g.PacketsRead,
		g.BytesRead,
		g.PacketsWritten,
		g.BytesWritten,
	)
}

// Handler returns the HTTP handler serving this registry's metrics in the
// Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
