package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Socket is an open, message-oriented connection to the device
type Socket interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens sockets
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Socket, error)
}

// TransportConfig configures the websocket transport
type TransportConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PongWait         time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	Header           http.Header
}

// DefaultTransportConfig returns default transport settings
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingInterval:     50 * time.Second,
		MaxMessageSize:   10 * 1024 * 1024,
	}
}

// WebSocketDialer dials the device API with gorilla/websocket
type WebSocketDialer struct {
	config TransportConfig
	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer
func NewWebSocketDialer(config ...TransportConfig) *WebSocketDialer {
	cfg := DefaultTransportConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &WebSocketDialer{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial opens a websocket to rawURL. Failures are returned as
// *models.ConnectionError; malformed URLs and 4xx handshake rejections are
// not retryable.
func (d *WebSocketDialer) Dial(ctx context.Context, rawURL string) (Socket, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, &models.ConnectionError{URL: rawURL, Retryable: false, Cause: err}
	}

	conn, resp, err := d.dialer.DialContext(ctx, rawURL, d.config.Header)
	if err != nil {
		retryable := true
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil &&
			resp.StatusCode >= 400 && resp.StatusCode < 500 {
			retryable = false
			err = fmt.Errorf("%w: status %d", err, resp.StatusCode)
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &models.ConnectionError{URL: rawURL, Retryable: retryable, Cause: err}
	}

	return newWSSocket(conn, d.config), nil
}

type wsSocket struct {
	conn    *websocket.Conn
	config  TransportConfig
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newWSSocket(conn *websocket.Conn, config TransportConfig) *wsSocket {
	s := &wsSocket{conn: conn, config: config, done: make(chan struct{})}

	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	if config.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(config.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(config.PongWait))
		})
	}
	conn.SetPingHandler(func(appData string) error {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if config.PingInterval > 0 {
		go s.keepalive()
	}
	return s
}

func (s *wsSocket) keepalive() {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (s *wsSocket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
