package channels

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports client metrics to a Prometheus registry.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	observer := channels.NewPrometheusObserver(reg)
//	config := channels.DefaultConfig(url).WithObserver(observer)
type PrometheusObserver struct {
	connectionsTotal     *prometheus.CounterVec
	disconnectsTotal     prometheus.Counter
	reconnectAttempts    prometheus.Counter
	requestsTotal        *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	queueDepth           prometheus.Gauge
	messagesDrainedTotal prometheus.Counter
	messagesDroppedTotal *prometheus.CounterVec
	handlerPanicsTotal   prometheus.Counter
}

// NewPrometheusObserver creates an observer registering its metrics with
// reg. Pass prometheus.DefaultRegisterer to use the default registry; use
// a fresh registry per client in tests to avoid duplicate registration.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_connections_total",
			Help: "Total number of successful connections",
		}, []string{"type"}),
		disconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "channels_disconnects_total",
			Help: "Total number of lost connections",
		}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "channels_reconnect_attempts_total",
			Help: "Total number of reconnection attempts",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_requests_total",
			Help: "Total number of requests issued",
		}, []string{"stream", "action", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channels_request_duration_seconds",
			Help:    "Duration from request send to response dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stream", "action"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "channels_send_queue_depth",
			Help: "Number of messages buffered in the send queue",
		}),
		messagesDrainedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "channels_messages_drained_total",
			Help: "Total number of buffered messages flushed to the transport",
		}),
		messagesDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "channels_messages_dropped_total",
			Help: "Total number of messages discarded",
		}, []string{"reason"}),
		handlerPanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "channels_handler_panics_total",
			Help: "Total number of recovered handler panics during dispatch",
		}),
	}
}

// OnConnect counts connections by type
func (p *PrometheusObserver) OnConnect(reconnect bool) {
	connType := "initial"
	if reconnect {
		connType = "reconnect"
	}
	p.connectionsTotal.WithLabelValues(connType).Inc()
}

// OnDisconnect counts lost connections
func (p *PrometheusObserver) OnDisconnect(err error) {
	p.disconnectsTotal.Inc()
}

// OnReconnectAttempt counts reconnection attempts
func (p *PrometheusObserver) OnReconnectAttempt(attempt int, delay time.Duration) {
	p.reconnectAttempts.Inc()
}

// OnRequestStart does nothing; requests are counted on completion so the
// status label is known
func (p *PrometheusObserver) OnRequestStart(stream string, action Action, requestID string) {}

// OnRequestEnd counts the request and records its latency
func (p *PrometheusObserver) OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(stream, string(action), status).Inc()
	p.requestDuration.WithLabelValues(stream, string(action)).Observe(duration.Seconds())
}

// OnMessageQueued tracks queue depth
func (p *PrometheusObserver) OnMessageQueued(depth int) {
	p.queueDepth.Set(float64(depth))
}

// OnQueueDrain counts flushed messages and updates queue depth
func (p *PrometheusObserver) OnQueueDrain(sent int, remaining int) {
	p.messagesDrainedTotal.Add(float64(sent))
	p.queueDepth.Set(float64(remaining))
}

// OnMessageDropped counts drops by reason
func (p *PrometheusObserver) OnMessageDropped(reason string) {
	p.messagesDroppedTotal.WithLabelValues(reason).Inc()
}

// OnHandlerPanic counts recovered handler panics
func (p *PrometheusObserver) OnHandlerPanic(recovered interface{}) {
	p.handlerPanicsTotal.Inc()
}
