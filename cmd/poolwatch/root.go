package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"poolwatch/internal/config"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "poolwatch",
	Short: "Failover and error-rate alerts from a blue/green proxy access log",
	Long: `poolwatch tails the reverse proxy access log, detects pool failovers and
sustained 5xx rates, and sends rate-limited notifications to Slack or Telegram.

Configuration comes from the environment, an optional .env file and an optional
YAML overlay named by POOLWATCH_CONFIG.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.LogLevel)
		return nil
	},
	RunE:          runWatch,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if logger != nil {
			logger.Error("poolwatch failed", "err", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return err
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
