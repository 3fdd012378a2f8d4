package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
	"github.com/jowharshamshiri/GoZaparoo/pkg/server"
)

func main() {
	var (
		listen     string
		writeDelay time.Duration
		debug      bool
		maxConns   int
	)

	rootCmd := &cobra.Command{
		Use:   "zapmock",
		Short: "Run a mock Zaparoo Core device",
		Long: `zapmock serves the Zaparoo remote API over websocket with an
in-memory media catalogue, settings, mappings and one reader.

Examples:
  zapmock
  zapmock --listen :7497 --write-delay 3s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			srv := server.New(server.ServerConfig{MaxConnections: maxConns, Logger: logger})
			device := server.NewDevice()
			device.WriteDelay = writeDelay
			if err := device.Install(srv); err != nil {
				return err
			}

			srv.On(server.EventRequest, func(data any) {
				if req, ok := data.(*server.Request); ok {
					logger.Debug("request", "method", req.Method, "id", req.ID, "session", req.Session.ID())
				}
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, listen)
		},
	}

	rootCmd.Flags().StringVarP(&listen, "listen", "l", fmt.Sprintf(":%d", core.DefaultPort), "Listen address")
	rootCmd.Flags().DurationVar(&writeDelay, "write-delay", 0, "Complete tag writes after this delay (0 waits for cancel)")
	rootCmd.Flags().IntVar(&maxConns, "max-connections", 100, "Maximum concurrent clients")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Log every request")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
