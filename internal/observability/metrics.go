package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionState prometheus.Gauge
	Reconnects      prometheus.Counter
	DialFailures    prometheus.Counter
	Messages        *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	SendsDropped    prometheus.Counter
	FenceDrops      *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Websocket state: 0 closed, 1 connecting, 2 open.",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a close or dial failure.",
		}),
		DialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Websocket dials that failed.",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped at decode, by reason.",
		}, []string{"reason"}),
		SendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_dropped_total",
			Help:      "Outbound sends dropped because the socket was not open.",
		}),
		FenceDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fence_drops_total",
			Help:      "Messages rejected as belonging to a superseded session.",
		}, []string{"type"}),
		HandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Subscriber handler errors and recovered panics.",
		}, []string{"kind"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Debounced downstream invalidations by target.",
		}, []string{"target"}),
	}
}

func (m *Metrics) SetConnectionState(v int) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(v))
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

func (m *Metrics) IncDialFailure() {
	if m == nil {
		return
	}
	m.DialFailures.Inc()
}

func (m *Metrics) IncMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) IncDecodeError(reason string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSendDropped() {
	if m == nil {
		return
	}
	m.SendsDropped.Inc()
}

func (m *Metrics) IncFenceDrop(msgType string) {
	if m == nil {
		return
	}
	m.FenceDrops.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncHandlerFailure(kind string) {
	if m == nil {
		return
	}
	m.HandlerFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRefresh(target string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(target).Inc()
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
