package models

import (
	"encoding/json"
	"fmt"
)

// JSONRPCErrorCode represents standard JSON-RPC 2.0 error codes
type JSONRPCErrorCode int

const (
	// Standard JSON-RPC 2.0 error codes
	ParseError     JSONRPCErrorCode = -32700
	InvalidRequest JSONRPCErrorCode = -32600
	MethodNotFound JSONRPCErrorCode = -32601
	InvalidParams  JSONRPCErrorCode = -32602
	InternalError  JSONRPCErrorCode = -32603

	// Implementation-defined server error codes (-32000 to -32099)
	ServerError        JSONRPCErrorCode = -32000
	ServiceUnavailable JSONRPCErrorCode = -32001
	ReaderUnavailable  JSONRPCErrorCode = -32002
	WriteCancelled     JSONRPCErrorCode = -32003
	MediaIndexing      JSONRPCErrorCode = -32004
)

// String returns the string representation of the error code
func (code JSONRPCErrorCode) String() string {
	switch code {
	case ParseError:
		return "PARSE_ERROR"
	case InvalidRequest:
		return "INVALID_REQUEST"
	case MethodNotFound:
		return "METHOD_NOT_FOUND"
	case InvalidParams:
		return "INVALID_PARAMS"
	case InternalError:
		return "INTERNAL_ERROR"
	case ServerError:
		return "SERVER_ERROR"
	case ServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ReaderUnavailable:
		return "READER_UNAVAILABLE"
	case WriteCancelled:
		return "WRITE_CANCELLED"
	case MediaIndexing:
		return "MEDIA_INDEXING"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR_%d", int(code))
	}
}

// Message returns the standard human-readable message for the error code
func (code JSONRPCErrorCode) Message() string {
	switch code {
	case ParseError:
		return "Parse error"
	case InvalidRequest:
		return "Invalid Request"
	case MethodNotFound:
		return "Method not found"
	case InvalidParams:
		return "Invalid params"
	case InternalError:
		return "Internal error"
	case ServerError:
		return "Server error"
	case ServiceUnavailable:
		return "Service unavailable"
	case ReaderUnavailable:
		return "No reader available"
	case WriteCancelled:
		return "Write cancelled"
	case MediaIndexing:
		return "Media database is indexing"
	default:
		return "Unknown error"
	}
}

// JSONRPCError is the error object carried by an error response. It is
// returned to callers unchanged when the device rejects a request.
type JSONRPCError struct {
	Code    JSONRPCErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data,omitempty"`
}

// Error implements the error interface
func (e *JSONRPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("JSON-RPC Error %d: %s - %s", int(e.Code), e.Message, string(e.Data))
	}
	return fmt.Sprintf("JSON-RPC Error %d: %s", int(e.Code), e.Message)
}

// NewJSONRPCError creates a new JSON-RPC error with the specified code
func NewJSONRPCError(code JSONRPCErrorCode, details string) *JSONRPCError {
	e := &JSONRPCError{
		Code:    code,
		Message: code.Message(),
	}

	if details != "" {
		if data, err := json.Marshal(details); err == nil {
			e.Data = data
		}
	}

	return e
}

// UnmarshalJSON accepts both the error object and a bare message string.
func (e *JSONRPCError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Code = ServerError
		e.Message = msg
		return nil
	}

	type Alias JSONRPCError
	aux := (*Alias)(e)
	return json.Unmarshal(data, aux)
}
