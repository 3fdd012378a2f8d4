package models

import (
	"encoding/json"
	"time"
)

// JSONRPCVersion is the only protocol version tag accepted on the wire.
const JSONRPCVersion = "2.0"

// EnvelopeKind classifies an envelope.
type EnvelopeKind int

const (
	KindRequest EnvelopeKind = iota
	KindResponse
	KindErrorResponse
	KindNotification
)

func (k EnvelopeKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindErrorResponse:
		return "error"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Envelope is one decoded protocol message. Which fields are set depends on
// Kind: requests carry ID, Method and Params; responses ID and Result; error
// responses ID and Error; notifications Method and Params only.
type Envelope struct {
	Kind   EnvelopeKind
	ID     string
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *JSONRPCError
}

// RequestEnvelope is the outbound wire shape of a request.
type RequestEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NotificationEnvelope is the wire shape of a notification.
type NotificationEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ResponseEnvelope is the wire shape of a response or error response.
type ResponseEnvelope struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// CallStatus is the terminal outcome of a call.
type CallStatus int

const (
	StatusOK CallStatus = iota
	StatusCancelled
	StatusError
)

func (s CallStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CallResult is the settlement of a call: a value, a cancellation, or an
// error. Cancellation is a successful outcome, not an error.
type CallResult struct {
	Status    CallStatus
	Result    json.RawMessage
	Err       error
	SettledAt time.Time
}

// OK returns a successful result carrying raw.
func OK(raw json.RawMessage) CallResult {
	return CallResult{Status: StatusOK, Result: raw, SettledAt: time.Now()}
}

// Cancelled returns the cancellation sentinel.
func Cancelled() CallResult {
	return CallResult{Status: StatusCancelled, SettledAt: time.Now()}
}

// Failed returns an error result.
func Failed(err error) CallResult {
	return CallResult{Status: StatusError, Err: err, SettledAt: time.Now()}
}

// IsCancelled reports whether the call was intentionally aborted.
func (r CallResult) IsCancelled() bool {
	return r.Status == StatusCancelled
}

// Decode unmarshals the result payload into v. It is a no-op for cancelled
// results and returns Err for failed ones.
func (r CallResult) Decode(v any) error {
	switch r.Status {
	case StatusError:
		return r.Err
	case StatusCancelled:
		return nil
	}
	if v == nil || len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}
