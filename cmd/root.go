package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bargainlabs/dealhound/internal/config"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:               "dealhound",
	Short:             "Autonomous deal-hunting agent",
	Long:              "Scans a deal feed, estimates true market value with a retrieval-augmented pricing pipeline, and pushes at most one compelling opportunity per hunt.",
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrap,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// bootstrap loads configuration and installs the global logger before
// any subcommand runs.
func bootstrap(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c

	if err := config.InitLogger(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
