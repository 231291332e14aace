package channels

import (
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// websocketTransport is a reconnecting websocket Transport. It dials the
// configured endpoint, reads frames into the bound OnMessage handler, and
// on connection loss re-dials with exponentially growing delays until the
// configured retry limit is reached.
type websocketTransport struct {
	url      string
	log      logrus.FieldLogger
	debug    bool
	observer Observer

	connectionTimeout time.Duration
	minDelay          time.Duration
	maxDelay          time.Duration
	growFactor        float64
	maxRetries        int

	handlers TransportHandlers

	mu            sync.RWMutex
	conn          *websocket.Conn
	connected     bool
	started       bool
	everConnected bool

	// writeMu serializes frame writes; gorilla allows one concurrent writer
	writeMu sync.Mutex

	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebsocketTransport creates a reconnecting websocket transport from the
// tuning fields of config. The client builds one automatically when no
// custom Transport is injected.
func NewWebsocketTransport(config *Config) Transport {
	observer := config.Observer
	if observer == nil {
		observer = &NoopObserver{}
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &websocketTransport{
		url:               config.URL,
		log:               log,
		debug:             config.Debug,
		observer:          observer,
		connectionTimeout: config.ConnectionTimeout,
		minDelay:          config.MinReconnectionDelay,
		maxDelay:          config.MaxReconnectionDelay,
		growFactor:        config.ReconnectionDelayGrowFactor,
		maxRetries:        config.MaxRetries,
		closeCh:           make(chan struct{}),
	}
}

// Bind registers the event handlers. Must be called before Connect.
func (t *websocketTransport) Bind(handlers TransportHandlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = handlers
}

// Connect starts the dial/reconnect loop in the background.
func (t *websocketTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return NewError(ErrorTypeUsage, "transport already connected", ErrAlreadyInitialized)
	}
	select {
	case <-t.closeCh:
		return ErrClosed
	default:
	}
	t.started = true
	go t.run()
	return nil
}

// run owns the connection lifecycle: dial, emit events, read until the
// connection drops, back off, repeat.
func (t *websocketTransport) run() {
	attempt := 0
	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		conn, err := t.dial()
		if err != nil {
			attempt++
			if t.maxRetries > 0 && attempt >= t.maxRetries {
				t.log.WithError(err).WithField("attempts", attempt).
					Error("websocket: giving up after max retries")
				return
			}
			delay := t.reconnectDelay(attempt)
			t.observer.OnReconnectAttempt(attempt, delay)
			if t.debug {
				t.log.WithError(err).WithFields(logrus.Fields{
					"attempt": attempt,
					"delay":   delay,
				}).Debug("websocket: dial failed, backing off")
			}
			select {
			case <-t.closeCh:
				return
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0

		t.mu.Lock()
		t.conn = conn
		t.connected = true
		first := !t.everConnected
		t.everConnected = true
		handlers := t.handlers
		t.mu.Unlock()

		if t.debug {
			t.log.WithField("first", first).Debug("websocket: connected")
		}

		// open fires before any message events for this connection
		if handlers.OnOpen != nil {
			handlers.OnOpen()
		}
		if first {
			t.observer.OnConnect(false)
			if handlers.OnConnect != nil {
				handlers.OnConnect()
			}
		} else {
			t.observer.OnConnect(true)
			if handlers.OnReconnect != nil {
				handlers.OnReconnect()
			}
		}

		readErr := t.readLoop(conn, handlers)

		t.mu.Lock()
		t.connected = false
		t.conn = nil
		t.mu.Unlock()

		select {
		case <-t.closeCh:
			return
		default:
		}
		t.observer.OnDisconnect(readErr)
		if t.debug {
			t.log.WithError(readErr).Debug("websocket: connection lost")
		}
	}
}

// dial performs one connection attempt bounded by the connection timeout
func (t *websocketTransport) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: t.connectionTimeout}
	conn, resp, err := dialer.Dial(t.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// readLoop delivers inbound frames until the connection fails
func (t *websocketTransport) readLoop(conn *websocket.Conn, handlers TransportHandlers) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if handlers.OnMessage != nil {
			handlers.OnMessage(data)
		}
	}
}

// reconnectDelay computes the capped exponential backoff delay for the
// given attempt (1-based)
func (t *websocketTransport) reconnectDelay(attempt int) time.Duration {
	delay := float64(t.minDelay) * math.Pow(t.growFactor, float64(attempt-1))
	if delay > float64(t.maxDelay) {
		return t.maxDelay
	}
	return time.Duration(delay)
}

// Send writes one text frame to the current connection. Returns the byte
// count on success, 0 when disconnected or on write failure.
func (t *websocketTransport) Send(data []byte) int {
	t.mu.RLock()
	conn := t.conn
	connected := t.connected
	t.mu.RUnlock()

	if !connected || conn == nil {
		return 0
	}

	t.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()

	if err != nil {
		if t.debug {
			t.log.WithError(err).Debug("websocket: write failed")
		}
		return 0
	}
	return len(data)
}

// IsConnected reports whether a connection is currently established.
func (t *websocketTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Close tears down the connection and stops the reconnect loop.
func (t *websocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.mu.Lock()
		conn := t.conn
		t.connected = false
		t.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
