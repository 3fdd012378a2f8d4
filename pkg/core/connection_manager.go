package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// ConnectionState is the lifecycle state of a ConnectionManager
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrConnectInProgress is returned by Connect while another dial is running
var ErrConnectInProgress = errors.New("connect already in progress")

// ManagerConfig configures a ConnectionManager
type ManagerConfig struct {
	// GracePeriod is how long a dropped connection stays Reconnecting before
	// it is reported Disconnected.
	GracePeriod time.Duration
	// ConnectTimeout bounds each dial attempt.
	ConnectTimeout time.Duration
	// ReconnectBase and ReconnectMax bound the default exponential backoff.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// MaxReconnectAttempts moves the manager to Error after that many
	// consecutive failed dials; zero retries forever.
	MaxReconnectAttempts int

	Backoff Backoff
	Logger  *slog.Logger
}

// DefaultManagerConfig returns the default connection settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		GracePeriod:    500 * time.Millisecond,
		ConnectTimeout: 10 * time.Second,
		ReconnectBase:  250 * time.Millisecond,
		ReconnectMax:   30 * time.Second,
	}
}

// StateListener observes state transitions
type StateListener func(from, to ConnectionState)

// ConnectionManager owns the socket to the device: it dials, reconnects with
// backoff after drops, and hands inbound frames to the message handler.
// Listeners and handlers are never invoked while the manager lock is held.
type ConnectionManager struct {
	url     string
	dialer  Dialer
	config  ManagerConfig
	backoff Backoff
	logger  *slog.Logger

	mu         sync.Mutex
	state      ConnectionState
	socket     Socket
	generation uint64
	destroyed  bool
	connecting bool
	dialCancel context.CancelFunc
	attempts   int
	reconnects int
	lastErr    error
	dropped    bool
	retryTimer *time.Timer
	graceTimer *time.Timer
	graceSeq   uint64

	onOpen    func()
	onMessage func([]byte)
	listeners []StateListener
}

// NewConnectionManager creates an idle manager for rawURL
func NewConnectionManager(rawURL string, dialer Dialer, config ...ManagerConfig) *ConnectionManager {
	cfg := DefaultManagerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	defaults := DefaultManagerConfig()
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaults.GracePeriod
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaults.ReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaults.ReconnectMax
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = cfg.ReconnectBase
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = &ExponentialBackoff{Base: cfg.ReconnectBase, Max: cfg.ReconnectMax, Jitter: 0.2}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if dialer == nil {
		dialer = NewWebSocketDialer()
	}

	return &ConnectionManager{
		url:     rawURL,
		dialer:  dialer,
		config:  cfg,
		backoff: backoff,
		logger:  logger.With("component", "connection", "url", rawURL),
		state:   StateIdle,
	}
}

// URL returns the endpoint the manager dials
func (m *ConnectionManager) URL() string {
	return m.url
}

// SetHandlers installs the open hook, run after every successful connect,
// and the message handler, run sequentially for each inbound frame.
func (m *ConnectionManager) SetHandlers(onOpen func(), onMessage func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = onOpen
	m.onMessage = onMessage
}

// OnStateChange registers a listener for state transitions
func (m *ConnectionManager) OnStateChange(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current state
func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether frames can be sent
func (m *ConnectionManager) IsConnected() bool {
	return m.State() == StateConnected
}

// LastError returns the most recent dial or read failure
func (m *ConnectionManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Reconnects returns how many times the connection was re-established after
// a drop
func (m *ConnectionManager) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// transition must be called with mu held. The returned func delivers the
// change to listeners and must be called after mu is released.
func (m *ConnectionManager) transition(to ConnectionState) func() {
	from := m.state
	if from == to {
		return func() {}
	}
	m.state = to
	listeners := append([]StateListener(nil), m.listeners...)
	return func() {
		m.logger.Debug("state changed", "from", from.String(), "to", to.String())
		for _, fn := range listeners {
			fn(from, to)
		}
	}
}

// Connect dials the device. A retryable failure leaves the manager
// Disconnected with a retry scheduled; a terminal one moves it to Error. An
// explicit Connect resets the retry budget.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return models.ErrManagerDestroyed
	}
	m.attempts = 0
	m.backoff.Reset()
	m.mu.Unlock()

	return m.dial(ctx)
}

func (m *ConnectionManager) dial(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return models.ErrManagerDestroyed
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.connecting {
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	m.connecting = true
	m.stopRetryLocked()

	notify := func() {}
	if m.state != StateReconnecting {
		notify = m.transition(StateConnecting)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	m.dialCancel = cancel
	m.mu.Unlock()
	notify()

	socket, err := m.dialer.Dial(dialCtx, m.url)
	cancel()

	m.mu.Lock()
	m.connecting = false
	m.dialCancel = nil

	if m.destroyed {
		m.mu.Unlock()
		if socket != nil {
			socket.Close()
		}
		return models.ErrManagerDestroyed
	}

	if err != nil {
		return m.dialFailedLocked(err)
	}

	wasDropped := m.dropped
	m.dropped = false
	m.stopGraceLocked()
	m.socket = socket
	m.generation++
	gen := m.generation
	m.attempts = 0
	m.lastErr = nil
	m.backoff.Reset()
	if wasDropped {
		m.reconnects++
	}
	notify = m.transition(StateConnected)
	onOpen := m.onOpen
	m.mu.Unlock()

	m.logger.Info("connected")
	notify()
	go m.readLoop(socket, gen)
	if onOpen != nil {
		onOpen()
	}
	return nil
}

// dialFailedLocked is called with mu held and releases it
func (m *ConnectionManager) dialFailedLocked(err error) error {
	m.lastErr = err
	m.attempts++

	if !models.IsRetryable(err) {
		m.stopGraceLocked()
		notify := m.transition(StateError)
		m.mu.Unlock()
		m.logger.Error("connection failed", "error", err)
		notify()
		return err
	}

	if limit := m.config.MaxReconnectAttempts; limit > 0 && m.attempts >= limit {
		m.stopGraceLocked()
		notify := m.transition(StateError)
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("giving up after repeated connection failures", "attempts", attempts, "error", err)
		notify()
		return &models.ConnectionError{
			URL:       m.url,
			Retryable: false,
			Cause:     fmt.Errorf("%d consecutive attempts failed: %w", attempts, err),
		}
	}

	notify := func() {}
	if m.state != StateReconnecting {
		notify = m.transition(StateDisconnected)
	}
	delay := m.scheduleRetryLocked()
	m.mu.Unlock()

	m.logger.Warn("connection attempt failed", "error", err, "retry_in", delay)
	notify()
	return err
}

func (m *ConnectionManager) scheduleRetryLocked() time.Duration {
	m.stopRetryLocked()
	delay := m.backoff.Next()
	m.retryTimer = time.AfterFunc(delay, m.retry)
	return delay
}

func (m *ConnectionManager) stopRetryLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *ConnectionManager) stopGraceLocked() {
	m.graceSeq++
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
}

func (m *ConnectionManager) retry() {
	m.mu.Lock()
	eligible := !m.destroyed && (m.state == StateDisconnected || m.state == StateReconnecting)
	m.retryTimer = nil
	m.mu.Unlock()

	if !eligible {
		return
	}
	if err := m.dial(context.Background()); err != nil && !errors.Is(err, ErrConnectInProgress) {
		m.logger.Debug("reconnect attempt failed", "error", err)
	}
}

func (m *ConnectionManager) readLoop(socket Socket, gen uint64) {
	for {
		data, err := socket.ReadMessage()
		if err != nil {
			m.handleDrop(gen, err)
			return
		}

		m.mu.Lock()
		current := m.generation == gen
		onMessage := m.onMessage
		m.mu.Unlock()

		if !current {
			return
		}
		if onMessage != nil {
			onMessage(data)
		}
	}
}

func (m *ConnectionManager) handleDrop(gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	socket := m.socket
	m.socket = nil
	m.lastErr = cause
	notify := m.transition(StateReconnecting)

	m.dropped = true
	m.stopGraceLocked()
	seq := m.graceSeq
	m.graceTimer = time.AfterFunc(m.config.GracePeriod, func() { m.graceExpired(seq) })

	delay := m.scheduleRetryLocked()
	m.mu.Unlock()

	if socket != nil {
		socket.Close()
	}
	m.logger.Warn("connection lost", "error", cause, "retry_in", delay)
	notify()
}

func (m *ConnectionManager) graceExpired(seq uint64) {
	m.mu.Lock()
	if m.graceSeq != seq {
		m.mu.Unlock()
		return
	}
	m.graceTimer = nil

	notify := func() {}
	if m.state == StateReconnecting && !m.destroyed {
		notify = m.transition(StateDisconnected)
	}
	m.mu.Unlock()
	notify()
}

// Send writes one frame. It never queues: without an open socket it fails
// with models.ErrNotConnected.
func (m *ConnectionManager) Send(data []byte) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return models.ErrManagerDestroyed
	}
	socket := m.socket
	if m.state != StateConnected || socket == nil {
		m.mu.Unlock()
		return models.ErrNotConnected
	}
	m.mu.Unlock()

	return socket.WriteMessage(data)
}

// Destroy closes the socket, stops every timer and freezes the manager in
// Disconnected. Later Connect and Send calls fail with
// models.ErrManagerDestroyed.
func (m *ConnectionManager) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.stopRetryLocked()
	m.stopGraceLocked()
	if m.dialCancel != nil {
		m.dialCancel()
	}
	socket := m.socket
	m.socket = nil
	m.generation++
	notify := m.transition(StateDisconnected)
	m.destroyed = true
	m.listeners = nil
	m.onOpen = nil
	m.onMessage = nil
	m.mu.Unlock()

	if socket != nil {
		socket.Close()
	}
	notify()
	m.logger.Debug("destroyed")
}

// Destroyed reports whether Destroy has been called
func (m *ConnectionManager) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}
