// Package gozaparoo is a client for the Zaparoo Core remote API.
//
// A Remote keeps one reconnecting websocket to the device and exposes the
// typed JSON-RPC calls. Calls made while the device is unreachable are
// queued and sent in order once it reconnects.
//
// Example Usage:
//
//	remote, err := gozaparoo.Connect(ctx, "192.168.1.20")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer remote.Close()
//
//	version, err := remote.Version(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(version.Value.Version)
package gozaparoo

import (
	"context"
	"log/slog"

	"github.com/jowharshamshiri/GoZaparoo/pkg/api"
	"github.com/jowharshamshiri/GoZaparoo/pkg/config"
	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/metrics"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

// Version represents the library version
const Version = "0.1.0"

// Re-export main types for convenient access
type (
	Client            = api.Client
	ClientConfig      = api.Config
	Notification      = api.Notification
	ConnectionManager = core.ConnectionManager
	ConnectionState   = core.ConnectionState
	Endpoint          = core.Endpoint
	Config            = config.Config
	CallResult        = models.CallResult
	JSONRPCError      = models.JSONRPCError
	JSONRPCErrorCode  = models.JSONRPCErrorCode
)

// Connection states
const (
	StateIdle         = core.StateIdle
	StateConnecting   = core.StateConnecting
	StateConnected    = core.StateConnected
	StateReconnecting = core.StateReconnecting
	StateDisconnected = core.StateDisconnected
	StateError        = core.StateError
)

// ResolveAddress parses a device address into an Endpoint
var ResolveAddress = core.ResolveAddress

// LoadConfig reads a YAML or JSON config file
var LoadConfig = config.Load

// DefaultConfig returns the built-in configuration
var DefaultConfig = config.Default

// Remote bundles a connection manager and the API client attached to it
type Remote struct {
	*api.Client
	Endpoint core.Endpoint
	Manager  *core.ConnectionManager
}

type remoteOptions struct {
	dialer  core.Dialer
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option customizes NewRemote
type Option func(*remoteOptions)

// WithDialer replaces the websocket dialer
func WithDialer(d core.Dialer) Option {
	return func(o *remoteOptions) { o.dialer = d }
}

// WithLogger sets the logger shared by the manager and client
func WithLogger(l *slog.Logger) Option {
	return func(o *remoteOptions) { o.logger = l }
}

// WithMetrics records calls and connection state in c
func WithMetrics(c *metrics.Collector) Option {
	return func(o *remoteOptions) { o.metrics = c }
}

// NewRemote wires a connection manager and client from cfg without
// connecting. A nil cfg means DefaultConfig.
func NewRemote(cfg *config.Config, opts ...Option) *Remote {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	o := remoteOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	endpoint := cfg.Endpoint()

	mcfg := cfg.ManagerConfig()
	mcfg.Logger = o.logger
	manager := core.NewConnectionManager(endpoint.URL(), o.dialer, mcfg)

	ccfg := cfg.ClientConfig()
	ccfg.Logger = o.logger
	if o.metrics != nil {
		ccfg.Observer = o.metrics
	}
	client := api.New(manager, ccfg)

	if o.metrics != nil {
		o.metrics.TrackConnection(manager)
		o.metrics.TrackQueues(client)
	}

	return &Remote{Client: client, Endpoint: endpoint, Manager: manager}
}

// Connect resolves address, dials the device and returns a connected
// Remote
func Connect(ctx context.Context, address string, opts ...Option) (*Remote, error) {
	cfg := config.Default()
	cfg.Address = address
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := NewRemote(&cfg, opts...)
	if err := r.Connect(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Connect dials the device. Calls made before it succeeds are queued.
func (r *Remote) Connect(ctx context.Context) error {
	return r.Manager.Connect(ctx)
}

// State returns the connection manager's current state
func (r *Remote) State() core.ConnectionState {
	return r.Manager.State()
}

// Close cancels every outstanding call and tears down the connection
func (r *Remote) Close() {
	r.Client.Close()
	r.Manager.Destroy()
}
