package channels

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mods ...func(*Config)) (Client, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	config := DefaultConfig("").WithTransport(transport)
	for _, mod := range mods {
		mod(config)
	}
	client, err := NewClient(config)
	require.NoError(t, err)
	require.NoError(t, client.Initialize())
	return client, transport
}

func waitFuture(t *testing.T, future *Future) (json.RawMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return future.Wait(ctx)
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewClient(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestClient_MethodsBeforeInitialize(t *testing.T) {
	client, err := NewClient(DefaultConfig("").WithTransport(newFakeTransport()))
	require.NoError(t, err)

	_, err = client.List("todos")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.True(t, IsUsageError(err))

	_, err = client.Subscribe("todos", ActionCreate, nil, func(msg *Message) {})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestClient_DoubleInitialize(t *testing.T) {
	client, _ := newTestClient(t)
	assert.ErrorIs(t, client.Initialize(), ErrAlreadyInitialized)
}

func TestClient_CreateResolvesFuture(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	future, err := client.Request("todos",
		&RequestPayload{Action: ActionCreate, Data: json.RawMessage(`{"text":"a"}`)},
		WithRequestID("r1"))
	require.NoError(t, err)

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "todos", envelopes[0].Stream)
	assert.Equal(t, "r1", envelopes[0].RequestID)
	assert.JSONEq(t, `{"action":"create","data":{"text":"a"}}`, string(envelopes[0].Payload))

	transport.receive(`{"request_id":"r1","data":{"id":1,"text":"a"}}`)

	data, err := waitFuture(t, future)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"text":"a"}`, string(data))
}

func TestClient_GeneratesUniqueRequestIDs(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	_, err := client.Create("todos", map[string]string{"text": "a"})
	require.NoError(t, err)
	_, err = client.Create("todos", map[string]string{"text": "b"})
	require.NoError(t, err)

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 2)
	assert.NotEmpty(t, envelopes[0].RequestID)
	assert.NotEmpty(t, envelopes[1].RequestID)
	assert.NotEqual(t, envelopes[0].RequestID, envelopes[1].RequestID)
}

func TestClient_ErrorResponseRejects(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	future, err := client.Request("todos",
		&RequestPayload{Action: ActionCreate}, WithRequestID("r1"))
	require.NoError(t, err)

	transport.receive(`{"request_id":"r1","response_status":400,"errors":["text is required"]}`)

	_, err = waitFuture(t, future)
	require.Error(t, err)

	respErr, ok := AsResponseError(err)
	require.True(t, ok, "rejection carries the entire decoded response")
	assert.Equal(t, []string{"text is required"}, respErr.Response.Errors)
	assert.Equal(t, 400, respErr.Response.ResponseStatus)
}

func TestClient_ResponsesCorrelatedByRequestID(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	first, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r1"))
	require.NoError(t, err)
	second, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r2"))
	require.NoError(t, err)

	// Responses arrive out of send order; correlation is by request id only
	transport.receive(`{"request_id":"r2","data":{"id":2}}`)
	transport.receive(`{"request_id":"r1","data":{"id":1}}`)

	data, err := waitFuture(t, first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(data))

	data, err = waitFuture(t, second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2}`, string(data))
}

func TestClient_DeleteResolvesWithEmptyData(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	future, err := client.Delete("todos", 7)
	require.NoError(t, err)

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 1)
	assert.JSONEq(t, `{"action":"delete","pk":7}`, string(envelopes[0].Payload))

	transport.receive(`{"request_id":"` + envelopes[0].RequestID + `"}`)

	data, err := waitFuture(t, future)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestClient_OfflineRequestQueuedUntilReconnect(t *testing.T) {
	client, transport := newTestClient(t)

	// Never connected: the envelope is buffered, the future stays pending
	future, err := client.Request("todos",
		&RequestPayload{Action: ActionCreate, Data: json.RawMessage(`{"text":"a"}`)},
		WithRequestID("r1"))
	require.NoError(t, err)
	assert.Empty(t, transport.sentFrames())

	select {
	case <-future.Done():
		t.Fatal("future settled while disconnected")
	default:
	}

	// open fires, the backlog drains, the response resolves the future
	transport.open(true)
	require.Len(t, transport.sentFrames(), 1)

	transport.receive(`{"request_id":"r1","data":{"id":1,"text":"a"}}`)
	data, err := waitFuture(t, future)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"text":"a"}`, string(data))
}

func TestClient_DisconnectBuffersInFIFOOrder(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)
	transport.drop()

	_, err := client.Request("todos", &RequestPayload{Action: ActionCreate}, WithRequestID("r1"))
	require.NoError(t, err)
	_, err = client.Request("todos", &RequestPayload{Action: ActionUpdate}, WithRequestID("r2"))
	require.NoError(t, err)
	require.Empty(t, transport.sentFrames())

	transport.open(false)

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "r1", envelopes[0].RequestID)
	assert.Equal(t, "r2", envelopes[1].RequestID)
}

func TestClient_RequestRejectedWhenQueueFull(t *testing.T) {
	metrics := NewMetricsCollector()
	client, transport := newTestClient(t, func(c *Config) {
		c.MaxQueueDepth = 1
		c.Observer = metrics
	})

	// Disconnected: the first request fills the queue
	first, err := client.Request("todos",
		&RequestPayload{Action: ActionCreate}, WithRequestID("r1"))
	require.NoError(t, err)

	// The second cannot be buffered; the caller must get an error instead
	// of a future that pends forever on a dropped frame
	second, err := client.Request("todos",
		&RequestPayload{Action: ActionCreate}, WithRequestID("r2"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Nil(t, second)

	// The rejected request settled its accounting and released its listener
	errorCounts := metrics.GetMetrics()["errors"].(map[string]int64)
	assert.Equal(t, int64(1), errorCounts["todos create"])

	// Only the surviving request reaches the wire and resolves
	transport.open(true)
	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "r1", envelopes[0].RequestID)

	transport.receive(`{"request_id":"r1","data":{"id":1}}`)
	_, err = waitFuture(t, first)
	assert.NoError(t, err)
}

func TestClient_Subscribe(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	var events []*Message
	sub, err := client.Subscribe("todos", ActionUpdate, PK(5), func(msg *Message) {
		events = append(events, msg)
	})
	require.NoError(t, err)

	// Subscription request goes out immediately
	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 1)
	assert.JSONEq(t, `{"action":"subscribe","data":{"action":"update","pk":5}}`,
		string(envelopes[0].Payload))

	// Acknowledgment resolves the ack future
	transport.receive(`{"request_id":"` + envelopes[0].RequestID + `","response_status":200}`)
	_, err = waitFuture(t, sub.Ack())
	require.NoError(t, err)

	// Matching push event reaches the handler
	transport.receive(`{"stream":"todos","action":"update","pk":5,"data":{"id":5,"text":"x"}}`)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"id":5,"text":"x"}`, string(events[0].Data))

	// Different pk does not
	transport.receive(`{"stream":"todos","action":"update","pk":6,"data":{"id":6}}`)
	assert.Len(t, events, 1)

	// Different action does not
	transport.receive(`{"stream":"todos","action":"delete","pk":5}`)
	assert.Len(t, events, 1)
}

func TestClient_SubscribeWithoutPKMatchesAllRecords(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	events := 0
	_, err := client.Subscribe("todos", ActionCreate, nil, func(msg *Message) { events++ })
	require.NoError(t, err)

	transport.receive(`{"stream":"todos","action":"create","pk":1,"data":{}}`)
	transport.receive(`{"stream":"todos","action":"create","pk":2,"data":{}}`)
	transport.receive(`{"stream":"users","action":"create","pk":3,"data":{}}`)

	assert.Equal(t, 2, events)
}

func TestClient_SubscribeRejectsNonEventActions(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Subscribe("todos", ActionList, nil, func(msg *Message) {})
	assert.Error(t, err)
	assert.True(t, IsUsageError(err))

	_, err = client.Subscribe("todos", ActionCreate, nil, nil)
	assert.Error(t, err)
}

func TestClient_SubscriptionCancelIdempotent(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	events := 0
	sub, err := client.Subscribe("todos", ActionUpdate, PK(5), func(msg *Message) { events++ })
	require.NoError(t, err)

	assert.True(t, sub.Cancel())
	assert.False(t, sub.Cancel())
	assert.False(t, sub.Cancel())

	transport.receive(`{"stream":"todos","action":"update","pk":5,"data":{}}`)
	assert.Equal(t, 0, events, "canceled subscription receives nothing")
}

func TestClient_SubscriptionCancelSendsUnsubscribe(t *testing.T) {
	client, transport := newTestClient(t, func(c *Config) { c.SendUnsubscribe = true })
	transport.open(true)

	sub, err := client.Subscribe("todos", ActionDelete, nil, func(msg *Message) {})
	require.NoError(t, err)
	require.Len(t, transport.sentFrames(), 1)

	require.True(t, sub.Cancel())

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 2)
	assert.JSONEq(t, `{"action":"unsubscribe","data":{"action":"delete"}}`,
		string(envelopes[1].Payload))

	// Idempotent: no second unsubscribe frame
	assert.False(t, sub.Cancel())
	assert.Len(t, transport.sentFrames(), 2)
}

func TestClient_PreprocessHooks(t *testing.T) {
	client, transport := newTestClient(t, func(c *Config) {
		c.PreprocessPayload = func(stream string, payload *RequestPayload, requestID string) *RequestPayload {
			replaced := *payload
			replaced.Data = json.RawMessage(`{"stamped":true}`)
			return &replaced
		}
		c.PreprocessMessage = func(env *Envelope) *Envelope {
			replaced := *env
			replaced.Stream = "audited." + env.Stream
			return &replaced
		}
	})
	transport.open(true)

	_, err := client.Request("todos", &RequestPayload{Action: ActionCreate}, WithRequestID("r1"))
	require.NoError(t, err)

	envelopes := transport.sentEnvelopes(t)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "audited.todos", envelopes[0].Stream)
	assert.JSONEq(t, `{"action":"create","data":{"stamped":true}}`, string(envelopes[0].Payload))
}

func TestClient_RequestTimeout(t *testing.T) {
	client, transport := newTestClient(t, func(c *Config) {
		c.RequestTimeout = 20 * time.Millisecond
	})
	transport.open(true)

	future, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r1"))
	require.NoError(t, err)

	_, err = waitFuture(t, future)
	assert.ErrorIs(t, err, ErrRequestTimeout)

	// A response arriving after the timeout is ignored
	transport.receive(`{"request_id":"r1","data":{"id":1}}`)
	_, err = waitFuture(t, future)
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestClient_FutureCancel(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	future, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r1"))
	require.NoError(t, err)

	assert.True(t, future.Cancel())
	assert.False(t, future.Cancel())

	_, err = waitFuture(t, future)
	assert.ErrorIs(t, err, ErrRequestCanceled)

	// The correlation listener is gone; a late response goes nowhere
	transport.receive(`{"request_id":"r1","data":{"id":1}}`)
	_, err = waitFuture(t, future)
	assert.ErrorIs(t, err, ErrRequestCanceled)
}

func TestClient_FutureCancelAfterResolve(t *testing.T) {
	client, transport := newTestClient(t)
	transport.open(true)

	future, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r1"))
	require.NoError(t, err)

	transport.receive(`{"request_id":"r1","data":{"id":1}}`)
	_, err = waitFuture(t, future)
	require.NoError(t, err)

	assert.False(t, future.Cancel(), "settled future cannot be canceled")
}

func TestClient_DecodeFailureDoesNotStallDispatch(t *testing.T) {
	metrics := NewMetricsCollector()
	client, transport := newTestClient(t, func(c *Config) { c.Observer = metrics })
	transport.open(true)

	future, err := client.Request("todos", &RequestPayload{Action: ActionRetrieve}, WithRequestID("r1"))
	require.NoError(t, err)

	transport.receive(`{{{not json`)
	transport.receive(`{"request_id":"r1","data":{"id":1}}`)

	_, err = waitFuture(t, future)
	require.NoError(t, err, "valid frames still dispatch after a malformed one")

	dropped := metrics.GetMetrics()["messages_dropped"].(map[string]int64)
	assert.Equal(t, int64(1), dropped["decode_failure"])
}

func TestClient_State(t *testing.T) {
	transport := newFakeTransport()
	client, err := NewClient(DefaultConfig("").WithTransport(transport))
	require.NoError(t, err)

	assert.Equal(t, StateUninitialized, client.State())

	require.NoError(t, client.Initialize())
	assert.Equal(t, StateInitializing, client.State())

	transport.open(true)
	assert.Equal(t, StateConnected, client.State())

	transport.drop()
	assert.Equal(t, StateDisconnected, client.State())

	transport.open(false)
	assert.Equal(t, StateConnected, client.State())
}

func TestClient_Close(t *testing.T) {
	client, transport := newTestClient(t)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "close is idempotent")
	assert.True(t, transport.closed)

	_, err := client.List("todos")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_RequestValidation(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Request("", &RequestPayload{Action: ActionList})
	assert.True(t, IsUsageError(err))

	_, err = client.Request("todos", nil)
	assert.True(t, IsUsageError(err))
}
