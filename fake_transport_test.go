package channels

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTransport is a scriptable Transport for driving the client from
// tests: connections are opened and dropped by hand and inbound frames are
// injected directly.
type fakeTransport struct {
	mu        sync.Mutex
	handlers  TransportHandlers
	connected bool
	failSends bool
	closed    bool
	sent      [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Bind(handlers TransportHandlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = handlers
}

func (t *fakeTransport) Connect() error {
	return nil
}

func (t *fakeTransport) Send(data []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.failSends {
		return 0
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return len(data)
}

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

// open simulates a successful (re)connection: open fires first, then
// connect or reconnect, matching the transport event contract
func (t *fakeTransport) open(first bool) {
	t.mu.Lock()
	t.connected = true
	handlers := t.handlers
	t.mu.Unlock()

	if handlers.OnOpen != nil {
		handlers.OnOpen()
	}
	if first {
		if handlers.OnConnect != nil {
			handlers.OnConnect()
		}
	} else if handlers.OnReconnect != nil {
		handlers.OnReconnect()
	}
}

// drop simulates losing the connection
func (t *fakeTransport) drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
}

// receive injects one inbound frame
func (t *fakeTransport) receive(frame string) {
	t.mu.Lock()
	handlers := t.handlers
	t.mu.Unlock()
	if handlers.OnMessage != nil {
		handlers.OnMessage([]byte(frame))
	}
}

// sentFrames returns a copy of everything sent so far
func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	frames := make([][]byte, len(t.sent))
	copy(frames, t.sent)
	return frames
}

// sentEnvelopes decodes every sent frame as an envelope
func (t *fakeTransport) sentEnvelopes(tb testing.TB) []Envelope {
	tb.Helper()
	frames := t.sentFrames()
	envelopes := make([]Envelope, len(frames))
	for i, frame := range frames {
		require.NoError(tb, json.Unmarshal(frame, &envelopes[i]))
	}
	return envelopes
}
