package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jowharshamshiri/GoZaparoo"
	"github.com/jowharshamshiri/GoZaparoo/pkg/api"
	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/forward"
	"github.com/jowharshamshiri/GoZaparoo/pkg/metrics"
)

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		metricsAddr  string
		redisAddr    string
		redisChannel string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream device notifications until interrupted",
		Long: `Watch prints every notification pushed by the device as a JSON line
and keeps reconnecting when the device goes away.

Optionally serves /metrics and /status over HTTP and republishes
notifications to a Redis pub/sub channel.

Examples:
  zapctl watch
  zapctl watch --metrics-addr :9090
  zapctl watch --redis-addr localhost:6379 --redis-channel zaparoo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, g, metricsAddr, redisAddr, redisChannel)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /status on this address")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "Forward notifications to this Redis server")
	cmd.Flags().StringVar(&redisChannel, "redis-channel", "", "Redis pub/sub channel (default from config)")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, g *globalFlags, metricsAddr, redisAddr, redisChannel string) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if redisAddr != "" {
		cfg.Redis.Addr = redisAddr
	}
	if redisChannel != "" {
		cfg.Redis.Channel = redisChannel
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mcfg := metrics.DefaultConfig()
	mcfg.Registry = reg
	collector := metrics.New(mcfg)

	remote := gozaparoo.NewRemote(cfg, gozaparoo.WithLogger(logger), gozaparoo.WithMetrics(collector))
	defer remote.Close()

	out := cmd.OutOrStdout()
	remote.OnNotification(func(n api.Notification) {
		line := struct {
			Time   time.Time `json:"time"`
			Method string    `json:"method"`
			Params any       `json:"params,omitempty"`
		}{time.Now().UTC(), n.Method, n.Params}
		if len(n.Params) == 0 {
			line.Params = nil
		}
		if err := printCompactJSON(out, line); err != nil {
			logger.Warn("failed to print notification", "error", err)
		}
	})
	remote.Manager.OnStateChange(func(from, to core.ConnectionState) {
		logger.Info("connection state changed", "from", from.String(), "to", to.String())
	})

	var fwd *forward.Forwarder
	if cfg.Redis.Addr != "" {
		rdb, err := forward.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		publisher := forward.NewRedisPublisher(rdb)
		defer publisher.Close()

		fcfg := cfg.ForwardConfig()
		fcfg.Logger = logger
		fwd = forward.New(publisher, fcfg)
		fwd.Start(ctx)
		defer fwd.Wait()
		remote.OnNotification(fwd.Handle)
		logger.Info("forwarding notifications", "redis", cfg.Redis.Addr, "channel", fcfg.Channel)
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           newStatusRouter(remote, reg, fwd),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving status", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if err := remote.Connect(ctx); err != nil {
		if !willRetry(remote) {
			return fmt.Errorf("failed to connect to %s: %w", remote.Endpoint, err)
		}
		logger.Warn("device unreachable, retrying", "endpoint", remote.Endpoint.String(), "error", err)
	}

	<-ctx.Done()
	logger.Info("stopping watch")
	return nil
}

// willRetry reports whether the manager will keep retrying after a
// failed initial connect
func willRetry(remote *gozaparoo.Remote) bool {
	switch remote.State() {
	case gozaparoo.StateDisconnected, gozaparoo.StateReconnecting, gozaparoo.StateConnecting:
		return true
	}
	return false
}
