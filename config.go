package channels

import (
	"time"

	"github.com/sirupsen/logrus"
)

// PreprocessPayloadFunc may inspect or replace the payload of an outgoing
// request before the envelope is built. Return nil to keep the original.
type PreprocessPayloadFunc func(stream string, payload *RequestPayload, requestID string) *RequestPayload

// PreprocessMessageFunc may inspect or replace the envelope of an outgoing
// request just before it is encoded. Return nil to keep the original.
type PreprocessMessageFunc func(env *Envelope) *Envelope

// Config holds the configuration for a streaming client. All fields except
// URL are optional and have sensible defaults.
//
// Configuration can be built using the fluent builder pattern:
//
//	config := channels.DefaultConfig("wss://example.com/ws").
//	    WithConnectionTimeout(5 * time.Second).
//	    WithMaxRetries(20).
//	    WithObserver(channels.NewLogObserver(logger))
//
//	client, err := channels.NewClient(config)
type Config struct {
	// URL is the websocket endpoint to connect to.
	// Required unless a custom Transport is supplied.
	URL string

	// PreprocessPayload is applied to every outgoing request payload before
	// the envelope is built. It may replace the payload. Optional.
	PreprocessPayload PreprocessPayloadFunc

	// PreprocessMessage is applied to every outgoing envelope just before
	// encoding. It may replace the envelope. Optional.
	PreprocessMessage PreprocessMessageFunc

	// MinReconnectionDelay is the delay before the first reconnection
	// attempt. Passed through to the transport. Default: 1s
	MinReconnectionDelay time.Duration

	// MaxReconnectionDelay caps the reconnection delay. Passed through to
	// the transport. Default: 10s
	MaxReconnectionDelay time.Duration

	// ReconnectionDelayGrowFactor multiplies the delay after each failed
	// attempt. Passed through to the transport. Default: 1.3
	ReconnectionDelayGrowFactor float64

	// ConnectionTimeout bounds a single dial attempt. Passed through to the
	// transport. Default: 4s
	ConnectionTimeout time.Duration

	// MaxRetries limits consecutive failed connection attempts before the
	// transport gives up. 0 means retry forever. Passed through to the
	// transport. Default: 0
	MaxRetries int

	// Debug enables verbose transport logging through Logger.
	Debug bool

	// RequestTimeout bounds how long a pending request may wait for its
	// response, across disconnections. 0 disables the timeout entirely and
	// leaves the deadline to the caller via Future.Wait. Default: 0
	RequestTimeout time.Duration

	// MaxQueueDepth limits the number of outbound messages buffered while
	// the transport is unavailable. 0 means unbounded. Default: 0
	MaxQueueDepth int

	// SendUnsubscribe makes Subscription.Cancel also send an unsubscribe
	// envelope to the server. Default: false
	SendUnsubscribe bool

	// Observer receives monitoring hooks. If nil, NoopObserver is used.
	Observer Observer

	// Logger is used for transport and client logging.
	// If nil, the logrus standard logger is used.
	Logger logrus.FieldLogger

	// Serializer encodes and decodes wire frames.
	// If nil, the JSON serializer is used.
	Serializer Serializer

	// Transport overrides the websocket transport. Mainly useful for tests;
	// when set, URL and the reconnection tuning fields are ignored.
	Transport Transport
}

// DefaultConfig returns a Config for the given endpoint with defaults
// matching a patient, indefinitely reconnecting client:
//   - Reconnection delay: 1s growing by 1.3x, capped at 10s
//   - Connection timeout: 4s per dial attempt
//   - Retries: unlimited
//   - No request timeout, unbounded send queue
func DefaultConfig(url string) *Config {
	return &Config{
		URL:                         url,
		MinReconnectionDelay:        time.Second,
		MaxReconnectionDelay:        10 * time.Second,
		ReconnectionDelayGrowFactor: 1.3,
		ConnectionTimeout:           4 * time.Second,
		Observer:                    &NoopObserver{},
	}
}

// WithPreprocessPayload sets the payload preprocessing hook.
func (c *Config) WithPreprocessPayload(fn PreprocessPayloadFunc) *Config {
	c.PreprocessPayload = fn
	return c
}

// WithPreprocessMessage sets the envelope preprocessing hook.
func (c *Config) WithPreprocessMessage(fn PreprocessMessageFunc) *Config {
	c.PreprocessMessage = fn
	return c
}

// WithReconnectionDelay sets the reconnection delay bounds and grow factor.
//
// Example:
//
//	config := channels.DefaultConfig(url).
//	    WithReconnectionDelay(500*time.Millisecond, 30*time.Second, 2.0)
func (c *Config) WithReconnectionDelay(min, max time.Duration, growFactor float64) *Config {
	c.MinReconnectionDelay = min
	c.MaxReconnectionDelay = max
	c.ReconnectionDelayGrowFactor = growFactor
	return c
}

// WithConnectionTimeout bounds each dial attempt.
func (c *Config) WithConnectionTimeout(timeout time.Duration) *Config {
	c.ConnectionTimeout = timeout
	return c
}

// WithMaxRetries limits consecutive failed connection attempts.
// Set to 0 for unlimited retries.
func (c *Config) WithMaxRetries(maxRetries int) *Config {
	c.MaxRetries = maxRetries
	return c
}

// WithDebug enables verbose transport logging.
func (c *Config) WithDebug() *Config {
	c.Debug = true
	return c
}

// WithRequestTimeout bounds how long pending requests wait for a response.
// Set to 0 to wait indefinitely.
func (c *Config) WithRequestTimeout(timeout time.Duration) *Config {
	c.RequestTimeout = timeout
	return c
}

// WithMaxQueueDepth limits the send queue. Set to 0 for unbounded.
func (c *Config) WithMaxQueueDepth(depth int) *Config {
	c.MaxQueueDepth = depth
	return c
}

// WithSendUnsubscribe makes Subscription.Cancel notify the server.
func (c *Config) WithSendUnsubscribe() *Config {
	c.SendUnsubscribe = true
	return c
}

// WithObserver sets a custom observer for monitoring client operations.
func (c *Config) WithObserver(observer Observer) *Config {
	c.Observer = observer
	return c
}

// WithLogger sets the logger used for transport and client logging.
func (c *Config) WithLogger(logger logrus.FieldLogger) *Config {
	c.Logger = logger
	return c
}

// WithSerializer sets a custom wire codec.
func (c *Config) WithSerializer(serializer Serializer) *Config {
	c.Serializer = serializer
	return c
}

// WithTransport injects a custom transport, bypassing the websocket
// implementation. URL and reconnection tuning are ignored when set.
func (c *Config) WithTransport(transport Transport) *Config {
	c.Transport = transport
	return c
}

// Validate validates the configuration and fills defaults for missing
// values. This is called automatically by NewClient.
func (c *Config) Validate() error {
	if c.URL == "" && c.Transport == nil {
		return ErrInvalidConfig
	}
	if c.MinReconnectionDelay <= 0 {
		c.MinReconnectionDelay = time.Second
	}
	if c.MaxReconnectionDelay < c.MinReconnectionDelay {
		c.MaxReconnectionDelay = 10 * time.Second
	}
	if c.MaxReconnectionDelay < c.MinReconnectionDelay {
		c.MaxReconnectionDelay = c.MinReconnectionDelay
	}
	if c.ReconnectionDelayGrowFactor < 1 {
		c.ReconnectionDelayGrowFactor = 1.3
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 4 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxQueueDepth < 0 {
		c.MaxQueueDepth = 0
	}
	if c.Observer == nil {
		c.Observer = &NoopObserver{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Serializer == nil {
		c.Serializer = NewJSONSerializer()
	}
	return nil
}
