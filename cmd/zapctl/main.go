package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jowharshamshiri/GoZaparoo"
	"github.com/jowharshamshiri/GoZaparoo/pkg/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	address    string
	timeout    time.Duration
	logLevel   string
	logFormat  string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "zapctl",
		Short: "Control a Zaparoo Core device over its remote API",
		Long: `zapctl talks to a Zaparoo Core device over its websocket JSON-RPC API.

The device address is host, host:port or [ipv6]:port; the port
defaults to 7497.

Examples:
  zapctl version --address 192.168.1.20
  zapctl search metroid
  zapctl run "SNES/Super Metroid.sfc"
  zapctl watch --metrics-addr :9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "Config file (YAML or JSON)")
	flags.StringVarP(&g.address, "address", "a", "", "Device address (overrides config)")
	flags.DurationVarP(&g.timeout, "timeout", "t", 0, "Call timeout (overrides config)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&g.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		versionCmd(&g),
		callCmd(&g),
		runCmd(&g),
		stopCmd(&g),
		searchCmd(&g),
		readersCmd(&g),
		writeCmd(&g),
		watchCmd(&g),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// load reads the config file, applies flag overrides and builds the logger
func (g *globalFlags) load() (*config.Config, *slog.Logger, error) {
	cfg := config.Default()
	if g.configPath != "" {
		loaded, err := config.Load(g.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = *loaded
	}

	if g.address != "" {
		cfg.Address = g.address
	}
	if g.timeout > 0 {
		cfg.Calls.Timeout = config.Duration(g.timeout)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return &cfg, logger, nil
}

// connect loads the config and dials the device. The returned remote must
// be closed by the caller.
func (g *globalFlags) connect(ctx context.Context, opts ...gozaparoo.Option) (*gozaparoo.Remote, *slog.Logger, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}

	opts = append([]gozaparoo.Option{gozaparoo.WithLogger(logger)}, opts...)
	remote := gozaparoo.NewRemote(cfg, opts...)

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ManagerConfig().ConnectTimeout)
	defer cancel()
	if err := remote.Connect(dialCtx); err != nil {
		remote.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", remote.Endpoint, err)
	}
	logger.Debug("connected", "endpoint", remote.Endpoint.String())
	return remote, logger, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", cfg.Level)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCompactJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
