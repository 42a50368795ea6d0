package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

func init() {
	rootCmd.AddCommand(contextCmd)
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the context snapshot attached to events",
	Args:  cobra.NoArgs,
	RunE:  runContext,
}

func runContext(cmd *cobra.Command, args []string) error {
	collector := devpulse.NewCollector(
		devpulse.WithEnvironment(cfg.Env),
		devpulse.WithBaseURL(cfg.HomeURL),
	)
	snap := collector.Collect(cmd.Context())

	// Round-trip through JSON so the YAML keys match the wire names.
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode context: %w", err)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(fields)
}
