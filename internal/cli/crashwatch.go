package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
	"github.com/strongdm/devpulse-go/pkg/devpulse/adapters/gohost"
)

func init() {
	rootCmd.AddCommand(crashwatchCmd)
}

var crashwatchCmd = &cobra.Command{
	Use:   "crashwatch [dir]",
	Short: "Report runtime crash files as they appear",
	Long:  "Watches a crash directory written by gohost.EnableCrashOutput and reports every\ncrash as a fatal error. The directory defaults to the crash_dir setting.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCrashwatch,
}

func runCrashwatch(cmd *cobra.Command, args []string) error {
	dir := cfg.CrashDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("no crash directory given and crash_dir is not set")
	}

	opts, err := cfg.AgentOptions(logger)
	if err != nil {
		return err
	}
	agent := devpulse.Start(cfg.ToAgentConfig(), nil, opts...)
	if agent == nil {
		return errors.New("capture is disabled; set enabled and dsn")
	}
	defer agent.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := gohost.NewCrashWatcher(dir, func(ctx context.Context, crash *devpulse.RuntimeError) {
		agent.CaptureException(ctx, crash)
	}, logger)

	logger.Info("msg", "Watching crash directory",
		"component", "cli",
		"dir", dir)
	return watcher.Run(ctx)
}
