package channels

import (
	"errors"
	"sync"
	"time"
)

// SendFunc writes bytes to the transport and reports the number of bytes
// sent, 0 on failure.
type SendFunc func(data []byte) int

// ReadyFunc reports whether the transport can currently send.
type ReadyFunc func() bool

// QueuedMessage is one buffered outbound message.
type QueuedMessage struct {
	// Bytes is the encoded wire frame
	Bytes []byte
	// EnqueuedAt is when the message entered the queue
	EnqueuedAt time.Time
}

// SendQueue buffers outbound messages while the transport is unavailable
// and flushes them in FIFO order on demand. Messages are never delivered
// out of the order they were queued, and a queued message is only dropped
// on explicit failure of the underlying send or when a configured depth
// limit rejects it at enqueue time.
//
// SendQueue is safe for concurrent use. It never retries on its own: it
// drains only when ProcessQueue is called in response to transport
// readiness events.
type SendQueue struct {
	mu          sync.Mutex
	sendNow     SendFunc
	canSend     ReadyFunc
	queue       []QueuedMessage
	maxDepth    int
	observer    Observer
	initialized bool
}

// NewSendQueue creates a send queue. maxDepth limits the number of buffered
// messages; 0 means unbounded. The observer receives queue notifications;
// pass nil for no reporting.
func NewSendQueue(maxDepth int, observer Observer) *SendQueue {
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &SendQueue{maxDepth: maxDepth, observer: observer}
}

// Initialize binds the queue to a transport send function and a readiness
// predicate. It must be called exactly once before any other method; a
// second call returns ErrAlreadyInitialized.
func (q *SendQueue) Initialize(sendNow SendFunc, canSend ReadyFunc) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.initialized {
		return ErrAlreadyInitialized
	}
	if sendNow == nil || canSend == nil {
		return NewError(ErrorTypeUsage, "sendNow and canSend must be non-nil", ErrInvalidConfig)
	}
	q.sendNow = sendNow
	q.canSend = canSend
	q.initialized = true
	return nil
}

// SendNow calls the bound send function directly, bypassing the queue and
// any readiness check. It never retries and returns what the transport
// reports: the byte count on success, 0 on failure. Calling SendNow before
// Initialize returns 0.
func (q *SendQueue) SendNow(data []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sendNowLocked(data)
}

func (q *SendQueue) sendNowLocked(data []byte) int {
	if !q.initialized {
		return 0
	}
	return q.sendNow(data)
}

// QueueMessage appends data to the tail of the queue. It returns false only
// if the queue cannot accept the message: not yet initialized, or full.
func (q *SendQueue) QueueMessage(data []byte) bool {
	q.mu.Lock()
	depth, err := q.enqueueLocked(data)
	q.mu.Unlock()

	q.notifyEnqueue(depth, err)
	return err == nil
}

// enqueueLocked appends data and returns the new depth, or the reason the
// queue cannot accept it
func (q *SendQueue) enqueueLocked(data []byte) (int, error) {
	if !q.initialized {
		return 0, ErrNotInitialized
	}
	if q.maxDepth > 0 && len(q.queue) >= q.maxDepth {
		return 0, ErrQueueFull
	}
	q.queue = append(q.queue, QueuedMessage{Bytes: data, EnqueuedAt: time.Now()})
	return len(q.queue), nil
}

// notifyEnqueue reports an enqueue outcome to the observer. Called without
// the lock so observers may call back into the queue.
func (q *SendQueue) notifyEnqueue(depth int, err error) {
	switch {
	case err == nil:
		q.observer.OnMessageQueued(depth)
	case errors.Is(err, ErrQueueFull):
		q.observer.OnMessageDropped("queue_full")
	}
}

// Send attempts an immediate send when nothing is queued and the transport
// is ready; otherwise the message is queued behind any already buffered
// traffic so FIFO order is preserved. It returns the byte count of an
// immediate send, or 0 when the message was queued. A non-nil error means
// the message was neither sent nor queued: ErrNotInitialized before
// Initialize, ErrQueueFull when a configured depth limit rejects it.
func (q *SendQueue) Send(data []byte) (int, error) {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return 0, ErrNotInitialized
	}
	if len(q.queue) == 0 && q.canSend() {
		if n := q.sendNow(data); n > 0 {
			q.mu.Unlock()
			return n, nil
		}
	}
	depth, err := q.enqueueLocked(data)
	q.mu.Unlock()

	q.notifyEnqueue(depth, err)
	return 0, err
}

// ProcessQueue drains the queue head-first while the transport is ready,
// returning the count of messages actually sent. It stops at the first
// failed send or loss of readiness, leaving the unsent remainder queued in
// original order; a failed message stays at the head for the next attempt.
func (q *SendQueue) ProcessQueue() int {
	q.mu.Lock()
	if !q.initialized {
		q.mu.Unlock()
		return 0
	}
	sent := 0
	for len(q.queue) > 0 && q.canSend() {
		if q.sendNow(q.queue[0].Bytes) == 0 {
			break
		}
		q.queue[0] = QueuedMessage{}
		q.queue = q.queue[1:]
		sent++
	}
	remaining := len(q.queue)
	q.mu.Unlock()

	if sent > 0 {
		q.observer.OnQueueDrain(sent, remaining)
	}
	return sent
}

// Len returns the number of buffered messages.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
