package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var huntDryRun bool

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Run a single deal hunt in the foreground",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHunt(ctx, "hunt", huntDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Runner.Run(ctx)
		if err != nil {
			return err
		}

		// Print the finished run JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	huntCmd.Flags().BoolVar(&huntDryRun, "dry-run", false, "log the notification instead of delivering it")
	rootCmd.AddCommand(huntCmd)
}
