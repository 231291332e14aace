package channels

import (
	"encoding/json"
	"fmt"
)

// Action identifies the CRUD or subscription operation an envelope or push
// event refers to.
type Action string

const (
	// ActionList requests every record of a stream
	ActionList Action = "list"
	// ActionCreate creates a new record
	ActionCreate Action = "create"
	// ActionRetrieve fetches a single record by primary key
	ActionRetrieve Action = "retrieve"
	// ActionUpdate updates a single record by primary key
	ActionUpdate Action = "update"
	// ActionDelete removes a single record by primary key
	ActionDelete Action = "delete"
	// ActionSubscribe registers a standing interest in push events
	ActionSubscribe Action = "subscribe"
	// ActionUnsubscribe releases a previously registered subscription
	ActionUnsubscribe Action = "unsubscribe"
)

// Envelope is the multiplexed wire unit. Every outbound message is one
// envelope: the logical stream it addresses, the operation payload, and a
// correlation id linking the eventual response back to the caller.
//
// Example of what gets sent on the wire:
//
//	{
//	    "stream": "todos",
//	    "payload": {"action": "create", "data": {"text": "feed the birb"}},
//	    "request_id": "8f14e45f-..."
//	}
type Envelope struct {
	// Stream is the logical name of the typed record collection
	Stream string `json:"stream"`
	// Payload is the operation payload
	Payload json.RawMessage `json:"payload"`
	// RequestID is the correlation id; unique while the request is pending
	RequestID string `json:"request_id"`
}

// RequestPayload is the payload shape for CRUD and subscription requests.
type RequestPayload struct {
	// Action is the operation to perform
	Action Action `json:"action"`
	// PK is the primary key of the addressed record, when the action takes one
	PK *int64 `json:"pk,omitempty"`
	// Data carries record attributes or subscription parameters
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a decoded inbound value: either the response to a pending
// request or a push event for a subscription. Responses carry at least a
// request id plus success data or an error indication; push events carry
// stream, action and the changed record.
type Message struct {
	// Stream is the logical stream the message belongs to
	Stream string `json:"stream,omitempty"`
	// Action is the operation the message refers to
	Action Action `json:"action,omitempty"`
	// PK is the primary key of the affected record, if any
	PK *int64 `json:"pk,omitempty"`
	// RequestID correlates a response with its request; empty on push events
	RequestID string `json:"request_id,omitempty"`
	// ResponseStatus is the server's status code for a response, if reported
	ResponseStatus int `json:"response_status,omitempty"`
	// Errors holds server-reported failures for the request
	Errors []string `json:"errors,omitempty"`
	// Data is the record data or event body
	Data json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the message carries a recognizable success marker:
// no server-reported errors and no failure status. Anything else is treated
// as a rejection carrying the full response.
func (m *Message) OK() bool {
	if len(m.Errors) > 0 {
		return false
	}
	return m.ResponseStatus < 400
}

// Serializer encodes envelopes to wire bytes and decodes inbound frames
// back into messages. Implementations hold no internal state and must be
// safe for concurrent use.
//
// The default implementation is JSON; supply a custom Serializer through
// Config to speak a different wire format.
type Serializer interface {
	// Encode converts an envelope to wire bytes
	Encode(env *Envelope) ([]byte, error)
	// Decode parses an inbound frame into a message
	Decode(data []byte) (*Message, error)
}

// jsonSerializer is the default JSON wire codec
type jsonSerializer struct{}

// NewJSONSerializer returns the default JSON serializer.
func NewJSONSerializer() Serializer {
	return &jsonSerializer{}
}

// Encode marshals the envelope to JSON
func (s *jsonSerializer) Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("envelope cannot be nil")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode unmarshals an inbound frame into a Message
func (s *jsonSerializer) Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return &msg, nil
}

// marshalData converts record attributes to json.RawMessage for a payload.
// json.RawMessage values pass through untouched.
func marshalData(value interface{}) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize data: %w", err)
	}
	return json.RawMessage(data), nil
}
