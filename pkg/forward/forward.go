// Package forward republishes device notifications to Redis pub/sub.
package forward

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jowharshamshiri/GoZaparoo/pkg/api"
)

// Publisher delivers a payload to a channel
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Config configures a Forwarder
type Config struct {
	Channel        string
	RateLimit      float64
	Burst          int
	BufferSize     int
	PublishTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the default forwarding settings
func DefaultConfig() Config {
	return Config{
		Channel:        "zaparoo:notifications",
		RateLimit:      50,
		Burst:          100,
		BufferSize:     256,
		PublishTimeout: 2 * time.Second,
	}
}

// Message is the JSON published for each notification
type Message struct {
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Stats counts forwarding outcomes
type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Limited   uint64 `json:"limited"`
	Overflow  uint64 `json:"overflow"`
	Failed    uint64 `json:"failed"`
}

// Forwarder queues notifications and publishes them from one worker
// goroutine so the connection's read loop never waits on Redis.
type Forwarder struct {
	publisher Publisher
	config    Config
	limiter   *rate.Limiter
	logger    *slog.Logger
	buffer    chan Message

	forwarded atomic.Uint64
	limited   atomic.Uint64
	overflow  atomic.Uint64
	failed    atomic.Uint64

	wg sync.WaitGroup
}

// New creates a forwarder publishing through p
func New(p Publisher, config ...Config) *Forwarder {
	cfg := DefaultConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Forwarder{
		publisher: p,
		config:    cfg,
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		logger:    logger.With("component", "forward", "channel", cfg.Channel),
		buffer:    make(chan Message, cfg.BufferSize),
	}
}

// Handle is an api.NotificationListener. It never blocks: notifications
// over the rate limit or beyond the buffer are dropped and counted.
func (f *Forwarder) Handle(n api.Notification) {
	if !f.limiter.Allow() {
		f.limited.Add(1)
		return
	}
	msg := Message{Method: n.Method, Params: n.Params, ReceivedAt: time.Now().UTC()}
	select {
	case f.buffer <- msg:
	default:
		f.overflow.Add(1)
	}
}

// Start runs the publishing worker until ctx is done
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-f.buffer:
				f.publish(ctx, msg)
			}
		}
	}()
}

// Wait blocks until the worker started by Start has exited
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) publish(ctx context.Context, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		f.failed.Add(1)
		f.logger.Error("failed to encode notification", "method", msg.Method, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, f.config.PublishTimeout)
	defer cancel()
	if err := f.publisher.Publish(pubCtx, f.config.Channel, payload); err != nil {
		f.failed.Add(1)
		f.logger.Warn("failed to publish notification", "method", msg.Method, "error", err)
		return
	}
	f.forwarded.Add(1)
}

// Stats returns forwarding counters
func (f *Forwarder) Stats() Stats {
	return Stats{
		Forwarded: f.forwarded.Load(),
		Limited:   f.limited.Load(),
		Overflow:  f.overflow.Load(),
		Failed:    f.failed.Load(),
	}
}
