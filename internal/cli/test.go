package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/blocking"
	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/multi"
	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/stderr"
)

var (
	testDryRun bool
	testSync   bool
	testEcho   bool
)

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().BoolVar(&testDryRun, "dry-run", false, "Print the event instead of sending it")
	testCmd.Flags().BoolVar(&testSync, "sync", false, "Send with the blocking transport and wait for the response")
	testCmd.Flags().BoolVar(&testEcho, "echo", false, "Print the event to stderr and send it with the blocking transport")
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a connection-test event",
	Long:  "Sends an info-level \"" + devpulse.TestMessage + "\" event to the configured DSN.\nThe enabled setting is ignored so a disabled agent can be checked before it is switched on.",
	Args:  cobra.NoArgs,
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	dsn := cfg.ToAgentConfig().Endpoint
	if dsn == "" {
		return errors.New(devpulse.MsgNotConfigured)
	}

	opts, err := cfg.AgentOptions(logger)
	if err != nil {
		return err
	}
	switch {
	case testDryRun:
		opts = append(opts,
			devpulse.WithoutAsync(),
			devpulse.WithOutboundRequests(true),
			devpulse.WithFallback(stderr.New(stderr.WithVerbose(), stderr.WithWriter(cmd.ErrOrStderr()))))
	case testEcho:
		opts = append(opts,
			devpulse.WithoutAsync(),
			devpulse.WithOutboundRequests(true),
			devpulse.WithFallback(multi.New(
				stderr.New(stderr.WithWriter(cmd.ErrOrStderr())),
				blocking.New(
					blocking.WithTimeout(cfg.Timeout()),
					blocking.WithUserAgent(devpulse.UserAgent()),
				),
			)))
	case testSync:
		opts = append(opts, devpulse.WithoutAsync())
	}

	agent := devpulse.New(opts...)
	agent.Init(dsn, cfg.Env, nil)
	defer agent.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*cfg.Timeout())
	defer cancel()

	sent := agent.SendTest(devpulse.WithAdmin(ctx))
	if err := agent.Flush(ctx); err != nil {
		logger.Warn("msg", "Flush did not complete",
			"component", "cli",
			"error", err)
	}
	if !sent {
		return errors.New(devpulse.MsgSendFailed)
	}
	fmt.Fprintln(cmd.OutOrStdout(), devpulse.MsgEventSent)
	return nil
}
