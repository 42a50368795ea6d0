package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/lixenwraith/log"
	"github.com/spf13/cobra"

	"github.com/strongdm/devpulse-go/pkg/devpulse/config"
)

var (
	configPath string
	cfg        *config.Config
	logger     *log.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: $DEVPULSE_CONFIG_FILE or ~/.config/devpulse.toml)")
}

var rootCmd = &cobra.Command{
	Use:           "devpulse",
	Short:         "Error capture agent for Go services",
	Long:          "Sends connection tests, inspects the context snapshot and reports runtime crashes to a DevPulse ingest endpoint.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = config.Path()
		}
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded

		l, err := cfg.Log.NewLogger()
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Shutdown(2 * time.Second)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "devpulse: %v\n", err)
		os.Exit(1)
	}
}
