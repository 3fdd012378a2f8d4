package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jowharshamshiri/GoZaparoo"
	"github.com/jowharshamshiri/GoZaparoo/pkg/models"
)

func versionCmd(g *globalFlags) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the device and zapctl versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "zapctl:     %s (%s, library %s, %s)\n", version, commit, gozaparoo.Version, runtime.Version())
			if local {
				return nil
			}

			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			reply, err := remote.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "device:     %s (%s)\n", reply.Value.Version, reply.Value.Platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Print only the zapctl version")
	return cmd
}

func callCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Call any remote method with raw JSON params",
		Long: `Call sends one JSON-RPC request and prints the raw result.

Examples:
  zapctl call systems
  zapctl call mediaSearch '{"query": "mario", "maxResults": 5}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 2 {
				raw := json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("params are not valid JSON: %s", args[1])
				}
				params = raw
			}

			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			result, err := remote.Call(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if result.IsCancelled() {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return nil
			}
			if len(result.Result) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "null")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), result.Result)
		},
	}
}

func runCmd(g *globalFlags) *cobra.Command {
	var unsafe bool

	cmd := &cobra.Command{
		Use:   "run <text>",
		Short: "Launch a token as if it had been scanned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			text := args[0]
			_, err = remote.Run(cmd.Context(), models.RunParams{Text: &text, Unsafe: unsafe})
			return err
		},
	}

	cmd.Flags().BoolVar(&unsafe, "unsafe", false, "Allow unsafe ZapScript commands")
	return cmd
}

func stopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Exit the running media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			_, err = remote.Stop(cmd.Context())
			return err
		},
	}
}

func searchCmd(g *globalFlags) *cobra.Command {
	var (
		systems    []string
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the media database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			params := models.SearchParams{Query: args[0], Systems: systems}
			if maxResults > 0 {
				params.MaxResults = &maxResults
			}
			reply, err := remote.MediaSearch(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range reply.Value.Results {
				fmt.Fprintf(out, "%-10s %-40s %s\n", r.System.ID, r.Name, r.Path)
			}
			fmt.Fprintf(out, "%d of %d results\n", len(reply.Value.Results), reply.Value.Total)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&systems, "system", "s", nil, "Limit to system ids (repeatable)")
	cmd.Flags().IntVarP(&maxResults, "max", "n", 0, "Maximum results")
	return cmd
}

func readersCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "readers",
		Short: "List connected token readers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer remote.Close()

			reply, err := remote.Readers(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reply.Value)
		},
	}
}

func writeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "write <text>",
		Short: "Write text to the next tag presented to a reader",
		Long: `Write waits until a tag is presented to the device's reader.
Press Ctrl-C to cancel the pending write.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			remote, logger, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer remote.Close()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)
			go func() {
				if _, ok := <-sigs; ok && remote.CancelWrite() {
					logger.Info("write cancel requested")
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Present a tag to the reader...")
			reply, err := remote.Write(ctx, models.WriteParams{Text: args[0]})
			if err != nil {
				return err
			}
			if reply.Cancelled {
				fmt.Fprintln(out, "Write cancelled")
				return nil
			}
			fmt.Fprintln(out, "Write complete")
			return nil
		},
	}
}
