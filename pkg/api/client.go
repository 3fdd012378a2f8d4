// Package api is the typed call surface for a Zaparoo Core device. A Client
// routes every call through the attached connection: it sends immediately
// while connected and queues otherwise, flushing the queue in submission
// order when the connection opens.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

const tracerName = "github.com/jowharshamshiri/GoZaparoo/pkg/api"

// Connection is the transport a Client routes calls through.
// *core.ConnectionManager implements it.
type Connection interface {
	Send(data []byte) error
	IsConnected() bool
	// Destroyed reports that the connection will never open again.
	Destroyed() bool
	SetHandlers(onOpen func(), onMessage func([]byte))
}

// stateNotifier is implemented by connections that report state changes
type stateNotifier interface {
	OnStateChange(fn core.StateListener)
}

// Observer receives call lifecycle events, e.g. for metrics
type Observer interface {
	CallSubmitted(method string, queued bool)
	CallSettled(method string, status models.CallStatus, elapsed time.Duration)
	FrameDropped(reason string)
	NotificationReceived(method string)
}

// Config configures a Client
type Config struct {
	// RequestTimeout is how long a sent call waits for its response.
	RequestTimeout time.Duration
	// MaxPending limits calls awaiting a response.
	MaxPending int
	// QueueCapacity limits calls queued while disconnected; zero is unbounded.
	QueueCapacity int

	Logger   *slog.Logger
	Tracer   trace.Tracer
	Observer Observer
}

// DefaultConfig returns the default client configuration
func DefaultConfig() Config {
	return Config{
		RequestTimeout: protocol.DefaultRequestTimeout,
		MaxPending:     protocol.DefaultRegistryConfig().MaxPending,
		QueueCapacity:  1000,
	}
}

// Reply is the outcome of a typed call that did not fail. Cancelled is set
// when the call was aborted by Reset or CancelWrite; Value is then zero.
type Reply[T any] struct {
	Value     T
	Cancelled bool
}

// Notification is a message pushed by the device without a request id
type Notification struct {
	Method string
	Params json.RawMessage
}

// Decode unmarshals the notification params into v
func (n Notification) Decode(v any) error {
	if len(n.Params) == 0 || string(n.Params) == "null" {
		return nil
	}
	return json.Unmarshal(n.Params, v)
}

// NotificationListener handles device notifications. Listeners run on the
// connection's read goroutine and must not block.
type NotificationListener func(Notification)

// Client is the device API facade. Every method is safe for concurrent use.
type Client struct {
	config    Config
	codec     *protocol.Codec
	registry  *protocol.RequestRegistry
	queue     *protocol.OfflineQueue
	validator *core.Validator
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer

	// mu orders every decision about where a call goes: submit, flush,
	// reset, cancelWrite and attach.
	mu   sync.Mutex
	conn Connection

	writeMu sync.Mutex
	writeID string

	listenersMu  sync.RWMutex
	listeners    map[int]NotificationListener
	nextListener int
}

// New creates a client attached to conn. A nil conn leaves the client
// detached until Attach is called.
func New(conn Connection, config ...Config) *Client {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	c := &Client{
		config: cfg,
		codec:  protocol.NewCodec(),
		registry: protocol.NewRequestRegistry(protocol.RegistryConfig{
			MaxPending: cfg.MaxPending,
			Timeout:    cfg.RequestTimeout,
		}),
		queue:     protocol.NewOfflineQueue(cfg.QueueCapacity),
		validator: core.NewValidator(),
		logger:    logger.With("component", "api"),
		tracer:    tracer,
		observer:  cfg.Observer,
		listeners: make(map[int]NotificationListener),
	}
	if conn != nil {
		c.Attach(conn)
	}
	return c
}

// Attach routes later calls through conn and flushes queued calls if conn is
// already open. A previously attached connection is detached.
func (c *Client) Attach(conn Connection) {
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil && old != conn {
		old.SetHandlers(nil, nil)
	}
	conn.SetHandlers(c.flush, c.handleMessage)
	if sn, ok := conn.(stateNotifier); ok {
		sn.OnStateChange(func(_, _ core.ConnectionState) {
			if conn.Destroyed() {
				c.failDestroyed(conn)
			}
		})
	}
	if conn.IsConnected() {
		c.flush()
	}
}

// failDestroyed fails every queued and pending call routed through conn
// once it is destroyed
func (c *Client) failDestroyed(conn Connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	queued := c.queue.FailAll(models.ErrManagerDestroyed)
	var pending int
	for _, id := range c.registry.IDs() {
		if c.registry.Reject(id, models.ErrManagerDestroyed) {
			pending++
		}
	}
	c.mu.Unlock()

	if queued+pending > 0 {
		c.logger.Info("connection destroyed, failing outstanding calls", "queued", queued, "pending", pending)
	}
}

// Submit encodes a call and routes it without waiting for the outcome. The
// returned call settles exactly once. Submit fails only when the call could
// not be accepted at all.
func (c *Client) Submit(method string, params any) (*protocol.Call, error) {
	if err := c.validator.ValidateMethodName(method); err != nil {
		return nil, err
	}
	id, payload, err := c.codec.EncodeRequest(method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	call := protocol.NewCall(id, method)
	if c.observer != nil {
		observer := c.observer
		call.OnSettle(func(call *protocol.Call, r models.CallResult) {
			observer.CallSettled(call.Method, r.Status, r.SettledAt.Sub(call.CreatedAt))
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, models.ErrNoConnection
	}
	if c.conn.Destroyed() {
		return nil, models.ErrManagerDestroyed
	}

	if !c.conn.IsConnected() || c.queue.Len() > 0 {
		if err := c.queue.Enqueue(call, payload); err != nil {
			return nil, err
		}
		c.notifySubmitted(method, true)
		if c.conn.IsConnected() {
			c.flushLocked()
		}
		return call, nil
	}

	if err := c.registry.Register(call); err != nil {
		return nil, err
	}
	c.notifySubmitted(method, false)
	if err := c.conn.Send(payload); err != nil {
		c.registry.Reject(id, &models.TransportSendError{Cause: err})
	}
	return call, nil
}

func (c *Client) notifySubmitted(method string, queued bool) {
	if c.observer != nil {
		c.observer.CallSubmitted(method, queued)
	}
}

// Call submits method and waits for its outcome. A cancelled context
// abandons the call: it is removed from the queue or failed with the
// context error, and that result is returned.
func (c *Client) Call(ctx context.Context, method string, params any) (models.CallResult, error) {
	return c.await(ctx, method, params, nil)
}

func (c *Client) abandon(call *protocol.Call, cause error) models.CallResult {
	c.mu.Lock()
	if !c.queue.Remove(call.ID, cause) {
		c.registry.Reject(call.ID, cause)
	}
	c.mu.Unlock()
	return <-call.Done()
}

// flush is the connection's open hook
func (c *Client) flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

func (c *Client) flushLocked() {
	if c.conn == nil || c.queue.Len() == 0 {
		return
	}
	sent, err := c.queue.Flush(c.registry, c.conn.Send)
	if err != nil {
		c.logger.Warn("offline queue flush interrupted", "sent", sent, "remaining", c.queue.Len(), "error", err)
		return
	}
	c.logger.Debug("offline queue flushed", "sent", sent)
}

// handleMessage is the connection's message hook
func (c *Client) handleMessage(data []byte) {
	env, err := c.codec.Decode(data)
	if err != nil {
		c.logger.Warn("dropping inbound frame", "error", err)
		c.frameDropped("invalid")
		return
	}

	if env.Kind == models.KindResponse || env.Kind == models.KindErrorResponse {
		if err := c.validator.ValidateRequestID(env.ID); err != nil {
			c.logger.Warn("dropping response with malformed id", "error", err)
			c.frameDropped("invalid")
			return
		}
	}

	switch env.Kind {
	case models.KindResponse:
		if !c.registry.Resolve(env.ID, env.Result) {
			c.logger.Debug("no pending call for response", "id", env.ID)
			c.frameDropped("stale")
		}
	case models.KindErrorResponse:
		if !c.registry.Reject(env.ID, env.Error) {
			c.logger.Debug("no pending call for error response", "id", env.ID)
			c.frameDropped("stale")
		}
	case models.KindNotification:
		c.dispatch(Notification{Method: env.Method, Params: env.Params})
	default:
		c.logger.Debug("ignoring device request", "method", env.Method, "id", env.ID)
		c.frameDropped("request")
	}
}

func (c *Client) frameDropped(reason string) {
	if c.observer != nil {
		c.observer.FrameDropped(reason)
	}
}

func (c *Client) dispatch(n Notification) {
	if c.observer != nil {
		c.observer.NotificationReceived(n.Method)
	}

	c.listenersMu.RLock()
	listeners := make([]NotificationListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(n)
	}
}

// OnNotification registers fn for device notifications and returns a func
// that unregisters it
func (c *Client) OnNotification(fn NotificationListener) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

// Reset cancels every pending and queued call, clears the pending write and
// detaches the connection. Calls fail with models.ErrNoConnection until
// Attach supplies a new one.
func (c *Client) Reset() {
	c.logger.Info("resetting API client, cancelling outstanding calls")

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	pending := c.registry.CancelAll()
	queued := c.queue.Clear()
	c.mu.Unlock()

	c.writeMu.Lock()
	c.writeID = ""
	c.writeMu.Unlock()

	if conn != nil {
		conn.SetHandlers(nil, nil)
	}
	c.logger.Info("API client reset", "cancelled_pending", pending, "cancelled_queued", queued)
}

// Close resets the client and disarms every timer
func (c *Client) Close() {
	c.Reset()
	c.registry.Close()
}

// Attached reports whether a connection is attached
func (c *Client) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// PendingCount returns the number of sent calls awaiting a response
func (c *Client) PendingCount() int {
	return c.registry.Len()
}

// QueuedCount returns the number of calls waiting for a connection
func (c *Client) QueuedCount() int {
	return c.queue.Len()
}

// PendingWriteID returns the id of the in-flight write, or ""
func (c *Client) PendingWriteID() string {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeID
}

// Statistics returns registry statistics
func (c *Client) Statistics() protocol.RegistryStatistics {
	return c.registry.Statistics()
}
