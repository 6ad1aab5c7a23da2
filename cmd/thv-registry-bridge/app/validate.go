package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(config.WithConfigPath(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "✓ Valid configuration\n")
			_, _ = fmt.Fprintf(out, "  Bridge: %s\n", cfg.GetBridgeName())
			_, _ = fmt.Fprintf(out, "  Sink: %s\n", cfg.GetSinkType())
			for _, ch := range cfg.Channels {
				_, _ = fmt.Fprintf(out, "  Channel: %s (%s, every %s)\n", ch.Name, ch.GetType(), ch.GetRefreshInterval())
			}
			if cfg.Eviction.IsEnabled() {
				_, _ = fmt.Fprintf(out, "  Eviction: %s every %s\n",
					cfg.Eviction.GetStrategy(), cfg.Eviction.GetRoundInterval())
			}
			return nil
		},
	}
}
