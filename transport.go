package channels

// TransportHandlers bind the client to the transport's event stream.
// Nil handlers are ignored.
//
// Event contract, which any Transport implementation must honor:
//   - OnOpen fires once per successful (re)connection, before any message
//     events for that connection.
//   - OnConnect fires only on the very first successful connection.
//   - OnReconnect fires on every successful connection after the first.
//   - OnMessage fires once per inbound frame, delivering raw bytes prior
//     to decoding.
type TransportHandlers struct {
	// OnOpen fires on every successful connection
	OnOpen func()
	// OnConnect fires on the first successful connection only
	OnConnect func()
	// OnReconnect fires on every successful connection after the first
	OnReconnect func()
	// OnMessage delivers one raw inbound frame
	OnMessage func(data []byte)
}

// Transport owns one physical connection and its reconnection mechanics.
// The core never connects, backs off, or reads by itself: it binds
// handlers, sends bytes, and consults IsConnected.
//
// Implementations must be safe for concurrent use.
type Transport interface {
	// Bind registers the event handlers. Must be called before Connect.
	Bind(handlers TransportHandlers)

	// Connect starts the connection lifecycle. Connection attempts,
	// backoff, and reconnection run in the background; progress is
	// reported through the bound handlers.
	Connect() error

	// Send writes one frame to the current connection. It returns the
	// number of bytes sent, or 0 when disconnected or on write failure.
	// It never retries.
	Send(data []byte) int

	// IsConnected reports whether a connection is currently established.
	IsConnected() bool

	// Close tears down the connection and stops reconnecting.
	// Safe to call multiple times.
	Close() error
}
