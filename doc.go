// Package channels provides a Go client for streaming CRUD and
// subscription APIs multiplexed over a single reconnecting websocket
// connection. Many logical streams of typed records share one physical
// connection; requests, responses and push events are carried in envelopes
// pairing a stream name and payload with a correlation id.
//
// # Features
//
// The client provides:
//   - CRUD operations (list, create, retrieve, update, delete) per stream
//   - Long-lived subscriptions to create/update/delete push events with
//     explicit cancellation
//   - Automatic reconnection with configurable exponential backoff
//   - FIFO buffering of outbound traffic while disconnected, flushed in
//     order on recovery
//   - Request/response correlation by request id, independent of arrival
//     order
//   - Pluggable serialization, observability hooks, and transport
//   - Type-safe stream wrappers using generics
//
// # Basic Usage
//
// Create a client, initialize it once, and issue requests:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    channels "github.com/channelkit/channels-go"
//	)
//
//	func main() {
//	    client, err := channels.NewClient(channels.DefaultConfig("wss://example.com/ws"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := client.Initialize(); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//
//	    future, err := client.Create("todos", map[string]string{"text": "feed the birb"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    data, err := future.Wait(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("created: %s", data)
//	}
//
// # Subscriptions
//
// Subscriptions deliver push events until explicitly canceled:
//
//	sub, err := client.Subscribe("todos", channels.ActionUpdate, channels.PK(5),
//	    func(msg *channels.Message) {
//	        log.Printf("todo 5 updated: %s", msg.Data)
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Cancel()
//
// # Resilience
//
// The transport reconnects on its own; the client buffers outbound
// messages while disconnected and flushes them in FIFO order when the
// connection recovers. Futures for requests issued while offline stay
// pending until the matching response arrives, so a disconnect is
// invisible to callers beyond added latency. Callers who need a bound
// should pass a deadline context to Future.Wait or configure
// RequestTimeout.
//
// # Observability
//
// An Observer receives hooks for connection lifecycle, request latency,
// queue behavior and handler failures. NewLogObserver logs through logrus,
// NewPrometheusObserver exports metrics, NewMetricsCollector keeps
// in-memory counters for tests, and NewCompositeObserver combines them:
//
//	observer := channels.NewCompositeObserver(
//	    channels.NewLogObserver(logger),
//	    channels.NewPrometheusObserver(prometheus.DefaultRegisterer),
//	)
//	config := channels.DefaultConfig(url).WithObserver(observer)
package channels
