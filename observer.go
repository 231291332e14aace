package channels

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer provides hooks for monitoring client operations. Implement this
// interface to track connection health, request latencies, queue behavior,
// or handler failures.
//
// Observer methods should be fast and non-blocking; several are called from
// the transport's read loop.
//
// Example implementation:
//
//	type ConnObserver struct{}
//
//	func (o *ConnObserver) OnConnect(reconnect bool) {
//	    if reconnect {
//	        metrics.Reconnects.Inc()
//	    }
//	}
//
//	config := channels.DefaultConfig("wss://example.com/ws").
//	    WithObserver(&ConnObserver{})
type Observer interface {
	// OnConnect is called after a successful connection. reconnect is false
	// for the very first connection and true for every one after it.
	OnConnect(reconnect bool)

	// OnDisconnect is called when an established connection is lost.
	// err is the read error that ended the connection, if any.
	OnDisconnect(err error)

	// OnReconnectAttempt is called before each reconnection attempt.
	//
	// Parameters:
	//   - attempt: Attempt number since the last successful connection (1, 2, ...)
	//   - delay: Backoff delay waited before this attempt
	OnReconnectAttempt(attempt int, delay time.Duration)

	// OnRequestStart is called when a request is issued.
	OnRequestStart(stream string, action Action, requestID string)

	// OnRequestEnd is called when a pending request completes: resolved,
	// rejected, canceled, or timed out.
	OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error)

	// OnMessageQueued is called when an outbound message is buffered.
	// depth is the queue depth after the append.
	OnMessageQueued(depth int)

	// OnQueueDrain is called after a queue drain sends at least one message.
	OnQueueDrain(sent int, remaining int)

	// OnMessageDropped is called when a message is discarded.
	// reason is "queue_full" for rejected outbound messages and
	// "decode_failure" for unparseable inbound frames.
	OnMessageDropped(reason string)

	// OnHandlerPanic is called when a listener's handler panics during
	// dispatch. The panic is recovered; remaining listeners still run.
	OnHandlerPanic(recovered interface{})
}

// NoopObserver is a no-op implementation of Observer. It is the default
// observer used when none is configured and has zero overhead.
type NoopObserver struct{}

// OnConnect does nothing
func (n *NoopObserver) OnConnect(reconnect bool) {}

// OnDisconnect does nothing
func (n *NoopObserver) OnDisconnect(err error) {}

// OnReconnectAttempt does nothing
func (n *NoopObserver) OnReconnectAttempt(attempt int, delay time.Duration) {}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(stream string, action Action, requestID string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error) {
}

// OnMessageQueued does nothing
func (n *NoopObserver) OnMessageQueued(depth int) {}

// OnQueueDrain does nothing
func (n *NoopObserver) OnQueueDrain(sent int, remaining int) {}

// OnMessageDropped does nothing
func (n *NoopObserver) OnMessageDropped(reason string) {}

// OnHandlerPanic does nothing
func (n *NoopObserver) OnHandlerPanic(recovered interface{}) {}

// LogObserver logs client operations through a logrus logger. Connection
// lifecycle is logged at info level, per-request events at debug level,
// handler panics at error level.
//
// Example:
//
//	config := channels.DefaultConfig("wss://example.com/ws").
//	    WithObserver(channels.NewLogObserver(logrus.StandardLogger()))
type LogObserver struct {
	log logrus.FieldLogger
}

// NewLogObserver creates an observer that logs through the given logger.
func NewLogObserver(log logrus.FieldLogger) *LogObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogObserver{log: log}
}

// OnConnect logs the connection
func (o *LogObserver) OnConnect(reconnect bool) {
	o.log.WithField("reconnect", reconnect).Info("connected")
}

// OnDisconnect logs the disconnection
func (o *LogObserver) OnDisconnect(err error) {
	o.log.WithError(err).Warn("disconnected")
}

// OnReconnectAttempt logs the attempt
func (o *LogObserver) OnReconnectAttempt(attempt int, delay time.Duration) {
	o.log.WithFields(logrus.Fields{
		"attempt": attempt,
		"delay":   delay,
	}).Debug("reconnecting")
}

// OnRequestStart logs the request
func (o *LogObserver) OnRequestStart(stream string, action Action, requestID string) {
	o.log.WithFields(logrus.Fields{
		"stream":     stream,
		"action":     action,
		"request_id": requestID,
	}).Debug("request started")
}

// OnRequestEnd logs the completion
func (o *LogObserver) OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error) {
	fields := logrus.Fields{
		"stream":     stream,
		"action":     action,
		"request_id": requestID,
		"duration":   duration,
	}
	if err != nil {
		o.log.WithFields(fields).WithError(err).Debug("request failed")
		return
	}
	o.log.WithFields(fields).Debug("request completed")
}

// OnMessageQueued logs the queue depth
func (o *LogObserver) OnMessageQueued(depth int) {
	o.log.WithField("depth", depth).Debug("message queued")
}

// OnQueueDrain logs the drain
func (o *LogObserver) OnQueueDrain(sent int, remaining int) {
	o.log.WithFields(logrus.Fields{
		"sent":      sent,
		"remaining": remaining,
	}).Debug("queue drained")
}

// OnMessageDropped logs the drop
func (o *LogObserver) OnMessageDropped(reason string) {
	o.log.WithField("reason", reason).Warn("message dropped")
}

// OnHandlerPanic logs the recovered panic
func (o *LogObserver) OnHandlerPanic(recovered interface{}) {
	o.log.WithField("panic", recovered).Error("handler panicked during dispatch")
}

// MetricsCollector is a simple in-memory metrics implementation. It is
// primarily intended for debugging and testing; for production use,
// NewPrometheusObserver exports the same signals to a Prometheus registry.
//
// Example:
//
//	metrics := channels.NewMetricsCollector()
//	config := channels.DefaultConfig(url).WithObserver(metrics)
//
//	// Later
//	snapshot := metrics.GetMetrics()
//	fmt.Printf("reconnects: %v\n", snapshot["reconnects"])
type MetricsCollector struct {
	mu               sync.RWMutex
	connects         int64
	reconnects       int64
	disconnects      int64
	reconnectAttempt int64
	requestCount     map[string]int64
	errorCount       map[string]int64
	latencies        map[string][]time.Duration
	queued           int64
	drained          int64
	dropped          map[string]int64
	handlerPanics    int64
}

// NewMetricsCollector creates a thread-safe in-memory metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
		dropped:      make(map[string]int64),
	}
}

// OnConnect counts connections
func (m *MetricsCollector) OnConnect(reconnect bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reconnect {
		m.reconnects++
	} else {
		m.connects++
	}
}

// OnDisconnect counts disconnections
func (m *MetricsCollector) OnDisconnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

// OnReconnectAttempt counts attempts
func (m *MetricsCollector) OnReconnectAttempt(attempt int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectAttempt++
}

// OnRequestStart counts requests per stream/action
func (m *MetricsCollector) OnRequestStart(stream string, action Action, requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[stream+" "+string(action)]++
}

// OnRequestEnd records latency and errors
func (m *MetricsCollector) OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stream + " " + string(action)
	m.latencies[key] = append(m.latencies[key], duration)
	if err != nil {
		m.errorCount[key]++
	}
}

// OnMessageQueued counts queued messages
func (m *MetricsCollector) OnMessageQueued(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued++
}

// OnQueueDrain counts drained messages
func (m *MetricsCollector) OnQueueDrain(sent int, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drained += int64(sent)
}

// OnMessageDropped counts drops per reason
func (m *MetricsCollector) OnMessageDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

// OnHandlerPanic counts recovered handler panics
func (m *MetricsCollector) OnHandlerPanic(recovered interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlerPanics++
}

// GetMetrics returns a snapshot of current metrics. The returned map is a
// copy and safe to read without locks.
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requestsCopy := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requestsCopy[k] = v
	}
	errorsCopy := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}
	latenciesCopy := make(map[string][]time.Duration, len(m.latencies))
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}
	droppedCopy := make(map[string]int64, len(m.dropped))
	for k, v := range m.dropped {
		droppedCopy[k] = v
	}

	return map[string]interface{}{
		"connects":           m.connects,
		"reconnects":         m.reconnects,
		"disconnects":        m.disconnects,
		"reconnect_attempts": m.reconnectAttempt,
		"requests":           requestsCopy,
		"errors":             errorsCopy,
		"latencies":          latenciesCopy,
		"messages_queued":    m.queued,
		"messages_drained":   m.drained,
		"messages_dropped":   droppedCopy,
		"handler_panics":     m.handlerPanics,
	}
}

// CompositeObserver combines multiple observers into one. All observer
// methods are called on each child observer in order. If an observer
// panics, the panic is caught to prevent it from affecting the others or
// the dispatch that triggered it.
//
// Example:
//
//	observer := channels.NewCompositeObserver(
//	    channels.NewLogObserver(logger),
//	    channels.NewMetricsCollector(),
//	)
//	config := channels.DefaultConfig(url).WithObserver(observer)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Observer panicked, ignore
				}
			}()
			fn(obs)
		}()
	}
}

// OnConnect notifies all observers
func (c *CompositeObserver) OnConnect(reconnect bool) {
	c.each(func(o Observer) { o.OnConnect(reconnect) })
}

// OnDisconnect notifies all observers
func (c *CompositeObserver) OnDisconnect(err error) {
	c.each(func(o Observer) { o.OnDisconnect(err) })
}

// OnReconnectAttempt notifies all observers
func (c *CompositeObserver) OnReconnectAttempt(attempt int, delay time.Duration) {
	c.each(func(o Observer) { o.OnReconnectAttempt(attempt, delay) })
}

// OnRequestStart notifies all observers
func (c *CompositeObserver) OnRequestStart(stream string, action Action, requestID string) {
	c.each(func(o Observer) { o.OnRequestStart(stream, action, requestID) })
}

// OnRequestEnd notifies all observers
func (c *CompositeObserver) OnRequestEnd(stream string, action Action, requestID string, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(stream, action, requestID, duration, err) })
}

// OnMessageQueued notifies all observers
func (c *CompositeObserver) OnMessageQueued(depth int) {
	c.each(func(o Observer) { o.OnMessageQueued(depth) })
}

// OnQueueDrain notifies all observers
func (c *CompositeObserver) OnQueueDrain(sent int, remaining int) {
	c.each(func(o Observer) { o.OnQueueDrain(sent, remaining) })
}

// OnMessageDropped notifies all observers
func (c *CompositeObserver) OnMessageDropped(reason string) {
	c.each(func(o Observer) { o.OnMessageDropped(reason) })
}

// OnHandlerPanic notifies all observers
func (c *CompositeObserver) OnHandlerPanic(recovered interface{}) {
	c.each(func(o Observer) { o.OnHandlerPanic(recovered) })
}
