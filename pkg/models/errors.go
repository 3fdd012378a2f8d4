package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned by a connection manager asked to send while
	// it has no open socket.
	ErrNotConnected = errors.New("not connected")

	// ErrManagerDestroyed is returned by every operation on a destroyed
	// connection manager.
	ErrManagerDestroyed = errors.New("connection manager destroyed")

	// ErrNoConnection is returned by the API facade when no connection manager
	// is attached, e.g. after Reset.
	ErrNoConnection = errors.New("no connection manager attached")

	// ErrQueueFull is returned when the offline queue is at capacity.
	ErrQueueFull = errors.New("offline queue full")

	// ErrTooManyPending is returned when the request registry is at capacity.
	ErrTooManyPending = errors.New("too many pending requests")

	// ErrDuplicateID is returned when a call id is already being tracked.
	ErrDuplicateID = errors.New("request id already tracked")
)

// ProtocolValidationError reports an inbound frame that is not a valid
// envelope. It is fatal to the frame only, never to the connection.
type ProtocolValidationError struct {
	Message string
	Payload string
	Cause   error
}

func (e *ProtocolValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProtocolValidationError) Unwrap() error {
	return e.Cause
}

// NewProtocolValidationError builds the error returned for malformed or
// unsupported payloads.
func NewProtocolValidationError(payload []byte, cause error) *ProtocolValidationError {
	const maxPayload = 256
	p := string(payload)
	if len(p) > maxPayload {
		p = p[:maxPayload]
	}
	return &ProtocolValidationError{
		Message: "Not a valid JSON-RPC payload",
		Payload: p,
		Cause:   cause,
	}
}

// TransportSendError wraps a failed socket write. It rejects only the call
// whose envelope could not be written.
type TransportSendError struct {
	Cause error
}

func (e *TransportSendError) Error() string {
	return fmt.Sprintf("Failed to send request: Transport send error: %v", e.Cause)
}

func (e *TransportSendError) Unwrap() error {
	return e.Cause
}

// TimeoutError rejects a call that received no response within its window.
type TimeoutError struct {
	ID      string
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s (%s) timed out after %v", e.ID, e.Method, e.Timeout)
}

// ConnectionError reports a transport failure. Non-retryable failures move
// the connection manager to the Error state.
type ConnectionError struct {
	URL       string
	Retryable bool
	Cause     error
}

func (e *ConnectionError) Error() string {
	kind := "connection error"
	if !e.Retryable {
		kind = "fatal connection error"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", kind, e.URL, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", kind, e.URL)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err may succeed on a later connection attempt.
// Errors that are not ConnectionErrors are treated as retryable.
func IsRetryable(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return true
}
