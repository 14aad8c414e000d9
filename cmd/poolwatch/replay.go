package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"poolwatch/internal/app"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Run a finished log file through detection and print the alerts",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	if err := cfg.Runtime.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := app.Replay(ctx, cfg, args[0], cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nlines: %d  parse errors: %d  resets: %d\n", st.LinesRead, st.ParseErrors, st.StreamResets)
	fmt.Fprintf(out, "pool: %s  window: %d/%d  error rate: %.1f%%\n", st.CurrentPool, st.WindowLen, st.WindowCap, st.ErrorRate)
	return nil
}
