package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Request is one decoded JSON-RPC request received from a client
type Request struct {
	ID      string
	Method  string
	Params  json.RawMessage
	Session *Session
}

// DecodeParams unmarshals the request params into v. Absent or null params
// leave v untouched.
func (r *Request) DecodeParams(v any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return models.NewJSONRPCError(models.InvalidParams, err.Error())
	}
	return nil
}

// HandlerResult represents the result of a handler execution
type HandlerResult struct {
	Value any
	Error *models.JSONRPCError
}

// Handler answers one method. Handlers run on their own goroutine and may
// block; ctx is cancelled when the client disconnects.
type Handler interface {
	Handle(ctx context.Context, req *Request) HandlerResult
}

// HandlerFunc wraps a plain function
type HandlerFunc func(ctx context.Context, req *Request) HandlerResult

func (h HandlerFunc) Handle(ctx context.Context, req *Request) HandlerResult {
	return h(ctx, req)
}

// NewHandler adapts a typed function. Params are decoded into P; the
// returned value is serialized as the result.
func NewHandler[P, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) HandlerResult {
		var params P
		if err := req.DecodeParams(&params); err != nil {
			return HandlerResult{Error: toRPCError(err)}
		}
		value, err := fn(ctx, params)
		if err != nil {
			return HandlerResult{Error: toRPCError(err)}
		}
		return HandlerResult{Value: value}
	})
}

// NewVoidHandler adapts a function with a null result
func NewVoidHandler[P any](fn func(ctx context.Context, params P) error) Handler {
	return NewHandler(func(ctx context.Context, params P) (any, error) {
		return nil, fn(ctx, params)
	})
}

// toRPCError keeps JSON-RPC errors intact and maps anything else to an
// internal error.
func toRPCError(err error) *models.JSONRPCError {
	var rpcErr *models.JSONRPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return models.NewJSONRPCError(models.InternalError, err.Error())
}

// HandlerRegistry maps method names to handlers
type HandlerRegistry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	validator *core.Validator
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers:  make(map[string]Handler),
		validator: core.NewValidator(),
	}
}

// Register installs handler for method, replacing any existing one
func (r *HandlerRegistry) Register(method string, handler Handler) error {
	if err := r.validator.ValidateMethodName(method); err != nil {
		return fmt.Errorf("cannot register handler: %w", err)
	}
	if handler == nil {
		return fmt.Errorf("cannot register nil handler for %s", method)
	}

	r.mu.Lock()
	r.handlers[method] = handler
	r.mu.Unlock()
	return nil
}

func (r *HandlerRegistry) Unregister(method string) {
	r.mu.Lock()
	delete(r.handlers, method)
	r.mu.Unlock()
}

func (r *HandlerRegistry) Has(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[method]
	return exists
}

// Execute runs the handler for req.Method
func (r *HandlerRegistry) Execute(ctx context.Context, req *Request) (any, *models.JSONRPCError) {
	r.mu.RLock()
	handler, exists := r.handlers[req.Method]
	r.mu.RUnlock()

	if !exists {
		return nil, models.NewJSONRPCError(models.MethodNotFound, "method not found: "+req.Method)
	}

	result := handler.Handle(ctx, req)
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Value, nil
}
