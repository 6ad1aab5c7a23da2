package app

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	bridgeapp "github.com/stacklok/toolhive-registry-bridge/internal/app"
	"github.com/stacklok/toolhive-registry-bridge/internal/config"
)

const defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time

func newServeCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge",
		Long: `Start the bridge and its status API.

The bridge requires a configuration file (--config) that specifies:
- The channels and the legacy source each one reads
- The sink the instances are written into
- Eviction, status persistence and telemetry settings

The listen address can also be set with THV_BRIDGE_ADDRESS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	for _, name := range []string{"address", "config"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}

	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	address := v.GetString("address")
	configPath := v.GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"bridge", cfg.GetBridgeName(),
		"channels", len(cfg.Channels),
		"sink", cfg.GetSinkType())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bridge, err := bridgeapp.NewBridgeApp(ctx,
		bridgeapp.WithConfig(cfg),
		bridgeapp.WithAddress(address),
	)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(bridge.Start)
	g.Go(func() error {
		<-gctx.Done()
		return bridge.Stop(defaultGracefulTimeout)
	})
	return g.Wait()
}
