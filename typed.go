package channels

import (
	"context"
	"encoding/json"
	"fmt"
)

// Stream provides a type-safe wrapper around one logical stream. It uses
// Go generics to decode responses and push events into T, eliminating
// manual json.RawMessage handling at call sites.
//
// Example:
//
//	type Todo struct {
//	    ID   int64  `json:"id"`
//	    Text string `json:"text"`
//	}
//
//	todos := channels.NewStream[Todo](client, "todos")
//
//	created, err := todos.Create(ctx, Todo{Text: "feed the birb"})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("created todo %d\n", created.ID)
type Stream[T any] struct {
	client Client
	name   string
}

// NewStream creates a typed wrapper for the named stream.
func NewStream[T any](client Client, name string) *Stream[T] {
	return &Stream[T]{client: client, name: name}
}

// Name returns the stream name.
func (s *Stream[T]) Name() string {
	return s.name
}

// decodeResult waits for the future and decodes its data into T
func decodeResult[T any](ctx context.Context, future *Future) (T, error) {
	var zero T
	data, err := future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if len(data) == 0 {
		return zero, nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, NewError(ErrorTypeResponse,
			fmt.Sprintf("failed to decode response: %v", err), ErrInvalidResponse)
	}
	return value, nil
}

// List fetches every record of the stream.
func (s *Stream[T]) List(ctx context.Context) ([]T, error) {
	future, err := s.client.List(s.name)
	if err != nil {
		return nil, err
	}
	return decodeResult[[]T](ctx, future)
}

// Create creates a record and returns the server's view of it.
func (s *Stream[T]) Create(ctx context.Context, attrs T) (T, error) {
	future, err := s.client.Create(s.name, attrs)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeResult[T](ctx, future)
}

// Retrieve fetches one record by primary key.
func (s *Stream[T]) Retrieve(ctx context.Context, pk int64) (T, error) {
	future, err := s.client.Retrieve(s.name, pk)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeResult[T](ctx, future)
}

// Update updates one record by primary key and returns the server's view
// of it.
func (s *Stream[T]) Update(ctx context.Context, pk int64, attrs T) (T, error) {
	future, err := s.client.Update(s.name, pk, attrs)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeResult[T](ctx, future)
}

// Delete removes one record by primary key.
func (s *Stream[T]) Delete(ctx context.Context, pk int64) error {
	future, err := s.client.Delete(s.name, pk)
	if err != nil {
		return err
	}
	_, err = future.Wait(ctx)
	return err
}

// Event is a decoded push event for a typed stream.
type Event[T any] struct {
	// Action is the operation the event reports
	Action Action
	// PK is the primary key of the affected record, if any
	PK *int64
	// Object is the decoded record
	Object T
}

// Subscribe registers a typed handler for push events. Events whose data
// cannot be decoded into T are dropped. The returned subscription must be
// canceled by the caller when no longer needed.
//
// Example:
//
//	sub, err := todos.Subscribe(channels.ActionUpdate, nil, func(ev channels.Event[Todo]) {
//	    fmt.Printf("todo %d is now %q\n", ev.Object.ID, ev.Object.Text)
//	})
func (s *Stream[T]) Subscribe(action Action, pk *int64, handler func(Event[T])) (*Subscription, error) {
	return s.client.Subscribe(s.name, action, pk, func(msg *Message) {
		var object T
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &object); err != nil {
				return
			}
		}
		handler(Event[T]{Action: msg.Action, PK: msg.PK, Object: object})
	})
}
