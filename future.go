package channels

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Future is the asynchronous result handle returned by Request and the CRUD
// methods. The caller resumes when the matching response is dispatched;
// there is no blocking I/O behind it.
//
// A Future settles exactly once: resolved with the response's data,
// rejected with a *ResponseError carrying the entire decoded response, or
// rejected with ErrRequestCanceled/ErrRequestTimeout.
//
// Example:
//
//	future, err := client.Create("todos", todo)
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	data, err := future.Wait(ctx)
type Future struct {
	done chan struct{}

	mu       sync.Mutex
	settled  bool
	data     json.RawMessage
	response *Message
	err      error

	cancelFn func() bool
	onSettle func(err error)
	timer    *time.Timer
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve settles the future with a successful response. First settle wins.
func (f *Future) resolve(msg *Message) {
	f.settle(msg.Data, msg, nil)
}

// reject settles the future with an error. First settle wins.
func (f *Future) reject(err error, msg *Message) {
	f.settle(nil, msg, err)
}

func (f *Future) settle(data json.RawMessage, msg *Message, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	f.data = data
	f.response = msg
	f.err = err
	if f.timer != nil {
		f.timer.Stop()
	}
	onSettle := f.onSettle
	f.mu.Unlock()

	close(f.done)
	if onSettle != nil {
		onSettle(err)
	}
}

// Done returns a channel closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done. On success it
// returns the response data; on rejection it returns the rejection error;
// if ctx ends first it returns ctx.Err() and the request stays pending.
//
// There is no built-in deadline: a request issued while disconnected stays
// pending across reconnection until its response arrives, the caller's ctx
// expires, Cancel is called, or a configured RequestTimeout fires.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

// Response returns the entire decoded response once the future has
// settled, nil before that and for cancellations that never saw one.
func (f *Future) Response() *Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.response
}

// Cancel releases the pending correlation listener and rejects the future
// with ErrRequestCanceled. It returns true exactly once: the first call on
// a future that has not already settled. A response dispatched after a
// successful Cancel is ignored.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	cancelFn := f.cancelFn
	f.mu.Unlock()
	if cancelFn == nil {
		return false
	}
	return cancelFn()
}

// setCancel installs the cancellation hook linking the future to its
// dispatcher listener
func (f *Future) setCancel(fn func() bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelFn = fn
}

// setOnSettle installs a completion callback invoked once after settling
func (f *Future) setOnSettle(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSettle = fn
}

// setTimer installs the request timeout timer so settling can stop it
func (f *Future) setTimer(t *time.Timer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		t.Stop()
		return
	}
	f.timer = t
}

// Subscription is a standing interest in push events for a stream, action
// and optional primary key. The owner must call Cancel to release it; the
// client never auto-expires a subscription.
//
// Example:
//
//	pk := channels.PK(5)
//	sub, err := client.Subscribe("todos", channels.ActionUpdate, pk, func(msg *channels.Message) {
//	    log.Printf("todo 5 updated: %s", msg.Data)
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Cancel()
//
//	// Wait for the server acknowledgment
//	if _, err := sub.Ack().Wait(ctx); err != nil {
//	    return err
//	}
type Subscription struct {
	stream     string
	action     Action
	pk         *int64
	ack        *Future
	dispatcher *Dispatcher
	listenerID int64
	unsub      func()
}

// Ack returns the future for the server's subscription acknowledgment. It
// resolves or rejects exactly like a Request future.
func (s *Subscription) Ack() *Future {
	return s.ack
}

// Cancel deactivates the subscription's listener and, when the client is
// configured with SendUnsubscribe, notifies the server. It is idempotent:
// true on the first call, false on every later one.
func (s *Subscription) Cancel() bool {
	canceled := s.dispatcher.Cancel(s.listenerID)
	if canceled && s.unsub != nil {
		s.unsub()
	}
	return canceled
}
