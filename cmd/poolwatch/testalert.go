package main

import (
	"context"

	"github.com/spf13/cobra"

	"poolwatch/internal/app"
)

var testAlertCmd = &cobra.Command{
	Use:   "test-alert",
	Short: "Send one test notification through the configured channel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		return app.SendTest(context.Background(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(testAlertCmd)
}
