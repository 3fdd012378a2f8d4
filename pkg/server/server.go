// Package server implements a mock Zaparoo device: a websocket JSON-RPC
// server that answers the remote API and pushes notifications.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
	"github.com/jowharshamshiri/GoZaparoo/pkg/protocol"
)

// EventHandler receives server events
type EventHandler func(data any)

// Server event names
const (
	EventConnection    = "connection"
	EventDisconnection = "disconnection"
	EventRequest       = "request"
	EventError         = "error"
)

// ServerConfig defines server configuration options
type ServerConfig struct {
	MaxConnections int
	MaxMessageSize int64
	WriteTimeout   time.Duration
	Logger         *slog.Logger
}

// DefaultServerConfig returns the default server settings
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxConnections: 100,
		MaxMessageSize: 5 * 1024 * 1024,
		WriteTimeout:   10 * time.Second,
	}
}

// Server accepts websocket clients at the API path and dispatches their
// requests to registered handlers.
type Server struct {
	registry  *HandlerRegistry
	codec     *protocol.Codec
	validator *core.Validator
	upgrader  websocket.Upgrader
	config    ServerConfig
	logger    *slog.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	events   map[string][]EventHandler
	closed   bool
}

// New creates a server with an empty handler registry
func New(config ...ServerConfig) *Server {
	cfg := DefaultServerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	def := DefaultServerConfig()
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	validator := core.NewValidator()
	validator.SetMaxFrameSize(int(cfg.MaxMessageSize))

	return &Server{
		registry:  NewHandlerRegistry(),
		codec:     protocol.NewCodec(),
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		config:   cfg,
		logger:   logger.With("component", "server"),
		sessions: make(map[*Session]struct{}),
		events:   make(map[string][]EventHandler),
	}
}

// Register installs a handler for method
func (s *Server) Register(method string, handler Handler) error {
	return s.registry.Register(method, handler)
}

func (s *Server) Registry() *HandlerRegistry {
	return s.registry
}

// On registers an event handler for the given event name
func (s *Server) On(event string, handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event] = append(s.events[event], handler)
}

// emit runs handlers asynchronously so a slow listener cannot stall a
// session
func (s *Server) emit(event string, data any) {
	s.mu.RLock()
	handlers := s.events[event]
	s.mu.RUnlock()

	for _, handler := range handlers {
		go handler(data)
	}
}

// Handler returns an http.Handler serving the websocket API at
// core.APIPath
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(core.APIPath, s.HandleWebSocket)
	return r
}

// HandleWebSocket upgrades the request and serves the session until the
// client disconnects
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	full := len(s.sessions) >= s.config.MaxConnections
	closed := s.closed
	s.mu.RUnlock()
	if closed || full {
		http.Error(w, "server unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.emit(EventError, err)
		return
	}
	conn.SetReadLimit(s.config.MaxMessageSize)

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:      uuid.New().String(),
		remote:  r.RemoteAddr,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		timeout: s.config.WriteTimeout,
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected", "session", sess.id, "remote", sess.remote)
	s.emit(EventConnection, sess)

	s.serve(sess)

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.Close()

	s.logger.Info("client disconnected", "session", sess.id)
	s.emit(EventDisconnection, sess)
}

func (s *Server) serve(sess *Session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, context.Canceled) {
				s.logger.Debug("read failed", "session", sess.id, "error", err)
			}
			return
		}

		if err := s.validator.ValidateFrame(data); err != nil {
			s.reject(sess, "", models.NewJSONRPCError(models.InvalidRequest, err.Error()))
			continue
		}
		env, err := s.codec.Decode(data)
		if err != nil {
			s.reject(sess, "", models.NewJSONRPCError(models.ParseError, err.Error()))
			continue
		}

		switch env.Kind {
		case models.KindRequest:
			req := &Request{ID: env.ID, Method: env.Method, Params: env.Params, Session: sess}
			s.emit(EventRequest, req)
			go s.handle(sess, req)
		case models.KindNotification:
			s.logger.Debug("ignoring client notification", "session", sess.id, "method", env.Method)
		default:
			s.logger.Debug("ignoring unexpected message", "session", sess.id, "kind", env.Kind.String())
		}
	}
}

func (s *Server) handle(sess *Session, req *Request) {
	result, rpcErr := s.registry.Execute(sess.ctx, req)
	if sess.ctx.Err() != nil {
		return
	}

	var (
		data []byte
		err  error
	)
	if rpcErr != nil {
		s.logger.Debug("request failed", "session", sess.id, "method", req.Method, "id", req.ID, "code", rpcErr.Code.String())
		data, err = s.codec.EncodeError(req.ID, rpcErr)
	} else {
		data, err = s.codec.EncodeResponse(req.ID, result)
	}
	if err != nil {
		s.logger.Error("failed to encode response", "method", req.Method, "error", err)
		data, _ = s.codec.EncodeError(req.ID, models.NewJSONRPCError(models.InternalError, err.Error()))
	}
	if err := sess.write(data); err != nil {
		s.logger.Debug("failed to send response", "session", sess.id, "error", err)
	}
}

func (s *Server) reject(sess *Session, id string, rpcErr *models.JSONRPCError) {
	data, err := s.codec.EncodeError(id, rpcErr)
	if err != nil {
		return
	}
	_ = sess.write(data)
}

// Notify broadcasts a notification to every connected client and returns
// how many received it
func (s *Server) Notify(method string, params any) int {
	data, err := s.codec.EncodeNotification(method, params)
	if err != nil {
		s.logger.Error("failed to encode notification", "method", method, "error", err)
		return 0
	}

	sent := 0
	for _, sess := range s.snapshot() {
		if err := sess.write(data); err == nil {
			sent++
		}
	}
	return sent
}

// SessionCount returns the number of connected clients
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// DropAll closes every client connection without a close handshake and
// returns how many were dropped. New clients are still accepted.
func (s *Server) DropAll() int {
	sessions := s.snapshot()
	for _, sess := range sessions {
		sess.drop()
	}
	return len(sessions)
}

// Close disconnects every client and refuses new ones
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, sess := range s.snapshot() {
		sess.Close()
	}
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock device listening", "addr", addr, "path", core.APIPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) snapshot() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Session is one connected client
type Session struct {
	id      string
	remote  string
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.remote
}

// Context is cancelled when the session ends
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.ctx.Err() != nil {
		return models.ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.cancel()
		_ = s.conn.Close()
	})
}

func (s *Session) drop() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.conn.Close()
	})
}
