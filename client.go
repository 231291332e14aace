package channels

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the observable connection state of a client.
type State int32

const (
	// StateUninitialized is the state before Initialize is called
	StateUninitialized State = iota
	// StateInitializing is the state after Initialize, before the transport
	// signals its first successful connection
	StateInitializing
	// StateConnected is the state while the transport can send
	StateConnected
	// StateDisconnected is the state whenever the transport cannot send,
	// after at least one successful connection
	StateDisconnected
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "uninitialized"
	}
}

// Client is a streaming API client multiplexing many logical streams of
// typed records over one reconnecting connection. Requests, responses and
// push events share the connection and are correlated by request id, never
// by send order.
//
// All methods are safe for concurrent use. Requests issued while the
// connection is down are buffered in FIFO order and flushed on recovery;
// their futures stay pending until the matching response arrives.
//
// Example:
//
//	client, err := channels.NewClient(channels.DefaultConfig("wss://example.com/ws"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	future, err := client.Create("todos", map[string]string{"text": "feed the birb"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	data, err := future.Wait(ctx)
type Client interface {
	// Initialize wires the transport, dispatcher and send queue together
	// and starts connecting. It must be called exactly once before any
	// other method; calling it twice, or calling other methods first, is a
	// usage error.
	Initialize() error

	// State returns the observable connection state.
	State() State

	// Request sends one envelope on the given stream and returns a future
	// for the correlated response. The request id is generated when not
	// supplied via WithRequestID.
	Request(stream string, payload *RequestPayload, opts ...RequestOption) (*Future, error)

	// List requests every record of a stream.
	List(stream string) (*Future, error)

	// Create creates a record from the given attributes. attrs must be
	// JSON-serializable.
	Create(stream string, attrs interface{}) (*Future, error)

	// Retrieve fetches a single record by primary key.
	Retrieve(stream string, pk int64) (*Future, error)

	// Update updates a single record by primary key.
	Update(stream string, pk int64, attrs interface{}) (*Future, error)

	// Delete removes a single record by primary key. The future resolves
	// with null or an empty value on success.
	Delete(stream string, pk int64) (*Future, error)

	// Subscribe registers a standing interest in push events for a stream
	// and action. pk narrows the subscription to one record; pass nil to
	// match all records. handler is invoked for every matching push event
	// until Subscription.Cancel is called.
	Subscribe(stream string, action Action, pk *int64, handler Handler) (*Subscription, error)

	// Close tears down the transport and releases resources.
	// Safe to call multiple times.
	Close() error
}

// RequestOption customizes a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	requestID string
}

// WithRequestID supplies the correlation id instead of generating one. The
// caller is responsible for its uniqueness: the (stream, request id) pair
// must not be reused while a request is pending.
func WithRequestID(id string) RequestOption {
	return func(o *requestOptions) {
		o.requestID = id
	}
}

// client is the concrete implementation of the Client interface
type client struct {
	config     *Config
	transport  Transport
	dispatcher *Dispatcher
	queue      *SendQueue
	serializer Serializer
	observer   Observer
	log        logrus.FieldLogger

	mu          sync.Mutex
	initialized bool
	everOpened  bool
	closed      bool
}

// NewClient creates a streaming client with the provided configuration.
// The configuration is validated and missing values are defaulted; the
// connection is not established until Initialize is called.
func NewClient(config *Config) (Client, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transport := config.Transport
	if transport == nil {
		transport = NewWebsocketTransport(config)
	}

	return &client{
		config:     config,
		transport:  transport,
		dispatcher: NewDispatcher(config.Observer),
		queue:      NewSendQueue(config.MaxQueueDepth, config.Observer),
		serializer: config.Serializer,
		observer:   config.Observer,
		log:        config.Logger,
	}, nil
}

// Initialize wires transport events to the send queue and dispatcher and
// starts the connection lifecycle
func (c *client) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.initialized {
		return ErrAlreadyInitialized
	}

	c.transport.Bind(TransportHandlers{
		OnOpen:      c.onOpen,
		OnConnect:   c.onConnect,
		OnReconnect: c.onReconnect,
		OnMessage:   c.onMessage,
	})

	if err := c.queue.Initialize(c.transport.Send, c.transport.IsConnected); err != nil {
		return err
	}

	c.initialized = true
	if err := c.transport.Connect(); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	return nil
}

// onOpen flushes traffic buffered while the transport was unavailable.
// It runs before any message events for the new connection, so the backlog
// drains strictly ahead of traffic sent after recovery.
func (c *client) onOpen() {
	c.mu.Lock()
	c.everOpened = true
	c.mu.Unlock()
	c.queue.ProcessQueue()
}

// onConnect is informational
func (c *client) onConnect() {
	if c.config.Debug {
		c.log.Debug("channels: first connection established")
	}
}

// onReconnect flushes anything still buffered after recovery
func (c *client) onReconnect() {
	c.queue.ProcessQueue()
}

// onMessage decodes one inbound frame and routes it to interested
// listeners. Malformed frames are dropped; they never crash dispatch of
// subsequent messages.
func (c *client) onMessage(data []byte) {
	msg, err := c.serializer.Decode(data)
	if err != nil {
		c.observer.OnMessageDropped("decode_failure")
		if c.config.Debug {
			c.log.WithError(err).Debug("channels: dropping undecodable frame")
		}
		return
	}
	c.dispatcher.Dispatch(msg)
}

// State returns the observable connection state
func (c *client) State() State {
	c.mu.Lock()
	initialized := c.initialized
	everOpened := c.everOpened
	c.mu.Unlock()

	if !initialized {
		return StateUninitialized
	}
	if c.transport.IsConnected() {
		return StateConnected
	}
	if !everOpened {
		return StateInitializing
	}
	return StateDisconnected
}

// checkReady reports usage errors for calls made before Initialize or
// after Close
func (c *client) checkReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Request issues one correlated request on the given stream
func (c *client) Request(stream string, payload *RequestPayload, opts ...RequestOption) (*Future, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}
	if stream == "" {
		return nil, NewError(ErrorTypeUsage, "stream cannot be empty", nil)
	}
	if payload == nil {
		return nil, NewError(ErrorTypeUsage, "payload cannot be nil", nil)
	}

	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}
	requestID := options.requestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	if hook := c.config.PreprocessPayload; hook != nil {
		if replaced := hook(stream, payload, requestID); replaced != nil {
			payload = replaced
		}
	}

	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(ErrorTypeUsage, "failed to encode payload", err)
	}

	env := &Envelope{
		Stream:    stream,
		Payload:   encodedPayload,
		RequestID: requestID,
	}
	if hook := c.config.PreprocessMessage; hook != nil {
		if replaced := hook(env); replaced != nil {
			env = replaced
		}
	}

	frame, err := c.serializer.Encode(env)
	if err != nil {
		return nil, NewError(ErrorTypeUsage, "failed to encode envelope", err)
	}

	action := payload.Action
	start := time.Now()
	future := newFuture()
	future.setOnSettle(func(settleErr error) {
		c.observer.OnRequestEnd(stream, action, env.RequestID, time.Since(start), settleErr)
	})

	// Register the correlation listener before sending so a fast response
	// cannot slip past it.
	listenerID := c.dispatcher.Once(matchRequestID(env.RequestID), func(msg *Message) {
		if msg.OK() {
			future.resolve(msg)
		} else {
			future.reject(&ResponseError{Response: msg}, msg)
		}
	})

	future.setCancel(func() bool {
		if !c.dispatcher.Cancel(listenerID) {
			return false
		}
		future.reject(ErrRequestCanceled, nil)
		return true
	})

	if timeout := c.config.RequestTimeout; timeout > 0 {
		future.setTimer(time.AfterFunc(timeout, func() {
			if c.dispatcher.Cancel(listenerID) {
				future.reject(ErrRequestTimeout, nil)
			}
		}))
	}

	c.observer.OnRequestStart(stream, action, env.RequestID)
	if _, err := c.queue.Send(frame); err != nil {
		// Neither sent nor queued. Release the correlation listener and
		// settle the future so the caller never waits on a dropped frame.
		c.dispatcher.Cancel(listenerID)
		future.reject(err, nil)
		return nil, err
	}
	return future, nil
}

// List requests every record of a stream
func (c *client) List(stream string) (*Future, error) {
	return c.Request(stream, &RequestPayload{Action: ActionList})
}

// Create creates a record from the given attributes
func (c *client) Create(stream string, attrs interface{}) (*Future, error) {
	data, err := marshalData(attrs)
	if err != nil {
		return nil, NewError(ErrorTypeUsage, "failed to serialize attributes", err)
	}
	return c.Request(stream, &RequestPayload{Action: ActionCreate, Data: data})
}

// Retrieve fetches one record by primary key
func (c *client) Retrieve(stream string, pk int64) (*Future, error) {
	return c.Request(stream, &RequestPayload{Action: ActionRetrieve, PK: &pk})
}

// Update updates one record by primary key
func (c *client) Update(stream string, pk int64, attrs interface{}) (*Future, error) {
	data, err := marshalData(attrs)
	if err != nil {
		return nil, NewError(ErrorTypeUsage, "failed to serialize attributes", err)
	}
	return c.Request(stream, &RequestPayload{Action: ActionUpdate, PK: &pk, Data: data})
}

// Delete removes one record by primary key
func (c *client) Delete(stream string, pk int64) (*Future, error) {
	return c.Request(stream, &RequestPayload{Action: ActionDelete, PK: &pk})
}

// subscriptionParams is the data body of subscribe/unsubscribe requests
type subscriptionParams struct {
	Action Action `json:"action"`
	PK     *int64 `json:"pk,omitempty"`
}

// Subscribe registers a persistent listener for push events and asks the
// server to start sending them
func (c *client) Subscribe(stream string, action Action, pk *int64, handler Handler) (*Subscription, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, NewError(ErrorTypeUsage, "handler cannot be nil", nil)
	}
	switch action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		return nil, NewError(ErrorTypeUsage,
			fmt.Sprintf("cannot subscribe to action %q", action), nil)
	}

	params, err := json.Marshal(subscriptionParams{Action: action, PK: pk})
	if err != nil {
		return nil, NewError(ErrorTypeUsage, "failed to encode subscription", err)
	}

	// The push-event listener is independent of the acknowledgment: it is
	// persistent and selects on stream/action/pk, with pk omitted matching
	// every record.
	selector := Selector{Stream: &stream, Action: &action, PK: pk}
	listenerID := c.dispatcher.Listen(selector, handler)

	ack, err := c.Request(stream, &RequestPayload{Action: ActionSubscribe, Data: params})
	if err != nil {
		c.dispatcher.Cancel(listenerID)
		return nil, err
	}

	sub := &Subscription{
		stream:     stream,
		action:     action,
		pk:         pk,
		ack:        ack,
		dispatcher: c.dispatcher,
		listenerID: listenerID,
	}
	if c.config.SendUnsubscribe {
		sub.unsub = func() {
			if _, err := c.Request(stream, &RequestPayload{Action: ActionUnsubscribe, Data: params}); err != nil {
				if c.config.Debug {
					c.log.WithError(err).Debug("channels: unsubscribe request failed")
				}
			}
		}
	}
	return sub, nil
}

// Close tears down the transport and releases resources
func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.transport.Close()
}
