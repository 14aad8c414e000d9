package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"poolwatch/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the access log and send alerts (default)",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("starting poolwatch", "version", Version, "addr", cfg.Addr, "db", cfg.DBPath, "channel", cfg.NotifyChannel)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
