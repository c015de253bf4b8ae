// Command mountgatectl calls a running mountgate service.
//
// Usage:
//
//	mountgatectl ready --wait 10
//	mountgatectl info
//	mountgatectl calc --num1 5.5 --num2 10.2 --op add
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/ahrav/mountgate/pkg/client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	baseURL string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	flags := new(rootFlags)

	defaultURL := os.Getenv("BASE_URL")
	if defaultURL == "" {
		defaultURL = client.DefaultBaseURL
	}

	cmd := &cobra.Command{
		Use:           "mountgatectl",
		Short:         "Call a mountgate service",
		SilenceUsage:  true,
	}
	cmd.PersistentFlags().StringVar(&flags.baseURL, "base-url", defaultURL, "service base URL (env BASE_URL)")
	cmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "per-request timeout")

	cmd.AddCommand(
		newReadyCmd(flags),
		newInfoCmd(flags),
		newCalcCmd(flags),
	)
	return cmd
}

func (f *rootFlags) client() *client.Client {
	return client.New(f.baseURL, client.WithTimeout(f.timeout))
}

func newReadyCmd(flags *rootFlags) *cobra.Command {
	var (
		wait     int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "ready",
		Short: "Call the startup probe",
		Long: `Call the startup probe once, or poll it with --wait.

Examples:
  # Single check
  mountgatectl ready

  # Poll up to 10 times, half a second apart
  mountgatectl ready --wait 10 --interval 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := flags.client()

			var (
				st  client.Status
				err error
			)
			if wait > 0 {
				st, err = c.WaitReady(cmd.Context(), wait, interval)
			} else {
				st, err = c.Ready(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().IntVar(&wait, "wait", 0, "poll up to N times until ready")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "delay between polls")
	return cmd
}

func newInfoCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := flags.client().Info(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func newCalcCmd(flags *rootFlags) *cobra.Command {
	var req client.CalculateRequest

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Call the calculator tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := flags.client().Calculate(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().Float64Var(&req.Num1, "num1", 0, "first operand")
	cmd.Flags().Float64Var(&req.Num2, "num2", 0, "second operand")
	cmd.Flags().StringVar(&req.Operation, "op", "add", "operation")
	_ = cmd.MarkFlagRequired("num1")
	_ = cmd.MarkFlagRequired("num2")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
