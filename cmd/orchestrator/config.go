package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreflux/llmorchestrator/internal/config"
)

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate orchestrator configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "invalid configuration:", err)
				os.Exit(exitConfigError)
			}
			fmt.Printf("configuration valid: server=%s:%d circuit={%d,%d,%dms} strategy=%s\n",
				cfg.Server.Host, cfg.Server.Port,
				cfg.Circuit.FailureThreshold, cfg.Circuit.SuccessThreshold, cfg.Circuit.TimeoutMs,
				cfg.LoadBalancer.DefaultStrategy,
			)
			return nil
		},
	})
	return configCmd
}
