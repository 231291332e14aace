package channels

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors returned by the client. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	future, err := client.Create("todos", todo)
//	if errors.Is(err, channels.ErrNotInitialized) {
//	    // Initialize() was never called
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotInitialized is returned when a method is called before Initialize
	ErrNotInitialized = errors.New("client not initialized")

	// ErrAlreadyInitialized is returned when Initialize is called twice
	ErrAlreadyInitialized = errors.New("client already initialized")

	// ErrClosed is returned when the client has been closed
	ErrClosed = errors.New("client is closed")

	// ErrQueueFull is returned when the send queue cannot accept more messages
	ErrQueueFull = errors.New("send queue is full")

	// ErrRequestCanceled is returned when a pending request is explicitly canceled
	ErrRequestCanceled = errors.New("request canceled")

	// ErrRequestTimeout is returned when a pending request exceeds the
	// configured RequestTimeout
	ErrRequestTimeout = errors.New("request timeout")

	// ErrInvalidResponse is returned when a response cannot be decoded into
	// the expected type
	ErrInvalidResponse = errors.New("invalid response")
)

// ErrorType categorizes errors for handling decisions.
//
// Example:
//
//	var cerr *channels.Error
//	if errors.As(err, &cerr) {
//	    switch cerr.Type {
//	    case channels.ErrorTypeUsage:
//	        // Programming error, fix the call site
//	    case channels.ErrorTypeTransport:
//	        // Connection problem, the send queue will retry on reconnect
//	    }
//	}
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown or unclassified error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeUsage represents usage errors (calling methods before
	// Initialize, double-initializing, invalid arguments)
	ErrorTypeUsage
	// ErrorTypeTransport represents transport-level failures (connection
	// loss, failed writes)
	ErrorTypeTransport
	// ErrorTypeDecode represents inbound frames the serializer could not parse
	ErrorTypeDecode
	// ErrorTypeResponse represents application-level failures reported by
	// the server inside an otherwise well-formed response
	ErrorTypeResponse
	// ErrorTypeCanceled represents explicitly canceled requests
	ErrorTypeCanceled
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeUsage:
		return "usage"
	case ErrorTypeTransport:
		return "transport"
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeResponse:
		return "response"
	case ErrorTypeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is an enhanced error carrying the category, the stream and request
// the failure belongs to, and the underlying cause.
//
// Example:
//
//	var cerr *channels.Error
//	if errors.As(err, &cerr) {
//	    log.Printf("%s error on stream %q (request %s): %v",
//	        cerr.Type, cerr.Stream, cerr.RequestID, cerr)
//	}
type Error struct {
	// Type categorizes the error for handling decisions
	Type ErrorType
	// Message is a human-readable error description
	Message string
	// Stream is the logical stream the failed operation addressed, if any
	Stream string
	// RequestID is the correlation id of the failed request, if any
	RequestID string
	// Timestamp is when the error occurred
	Timestamp time.Time
	// wrapped is the underlying error, if any
	wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Stream != "" {
		return fmt.Sprintf("%s error: %s (stream: %s)", e.Type, e.Message, e.Stream)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.wrapped
}

// NewError creates a new enhanced error
func NewError(errType ErrorType, message string, wrapped error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		wrapped:   wrapped,
	}
}

// ResponseError is a rejection carrying the entire decoded server response.
// It is produced when the server reports errors for a request, or when a
// response lacks a recognizable success marker.
//
// The full response is always available so callers can inspect whatever the
// server sent back:
//
//	_, err := future.Wait(ctx)
//	var respErr *channels.ResponseError
//	if errors.As(err, &respErr) {
//	    log.Printf("server rejected request %s: %v",
//	        respErr.Response.RequestID, respErr.Response.Errors)
//	}
type ResponseError struct {
	// Response is the entire decoded response from the server
	Response *Message
}

// Error implements the error interface
func (e *ResponseError) Error() string {
	if e.Response == nil {
		return "server rejected request"
	}
	if len(e.Response.Errors) > 0 {
		return fmt.Sprintf("server rejected request %s: %s",
			e.Response.RequestID, strings.Join(e.Response.Errors, "; "))
	}
	return fmt.Sprintf("server rejected request %s (status %d)",
		e.Response.RequestID, e.Response.ResponseStatus)
}

// IsUsageError reports whether the error is a usage error: a method called
// before Initialize, a double Initialize, or an invalid argument. Usage
// errors are fatal to the call that made them, never to the process.
func IsUsageError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyInitialized) ||
		errors.Is(err, ErrInvalidConfig) {
		return true
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Type == ErrorTypeUsage
	}
	return false
}

// AsResponseError extracts a *ResponseError from err, if it carries one.
//
// Example:
//
//	if respErr, ok := channels.AsResponseError(err); ok {
//	    handleServerErrors(respErr.Response.Errors)
//	}
func AsResponseError(err error) (*ResponseError, bool) {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr, true
	}
	return nil, false
}
