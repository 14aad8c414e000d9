package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"poolwatch/internal/alerts"
	"poolwatch/internal/config"
	"poolwatch/internal/logs"
	"poolwatch/internal/metrics"
	"poolwatch/internal/models"
	"poolwatch/internal/notifier"
)

// Replay feeds a finished log file through the detection pipeline and prints
// every message that would have been sent to out. Cooldowns follow the record
// timestamps so a replay reproduces what the live watcher would have sent.
func Replay(ctx context.Context, cfg config.Config, path string, out io.Writer, logger *slog.Logger) (alerts.Status, error) {
	fh, err := os.Open(path)
	if err != nil {
		return alerts.Status{}, fmt.Errorf("open replay file: %w", err)
	}
	src := logs.NewReaderSource(fh)
	defer src.Close()

	m := metrics.New()
	d := alerts.NewDispatcher(&notifier.Printer{W: out}, nil, m, logger.With("module", "dispatcher"), cfg.NotifyTimeout, cfg.Environment)
	w := alerts.NewWatcher(src, logs.NewParser(cfg.Pools), config.NewStore(cfg.Runtime, ""), d, m, logger.With("module", "watcher"),
		alerts.WatcherOptions{Baseline: cfg.ActivePool, RecordTime: true})
	if err := w.Run(ctx); err != nil {
		return w.Status(), err
	}
	return w.Status(), nil
}

// SendTest delivers one test notification through the configured channel.
func SendTest(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sender, err := NewSender(cfg)
	if err != nil {
		return err
	}
	d := alerts.NewDispatcher(sender, nil, nil, logger.With("module", "dispatcher"), cfg.NotifyTimeout, cfg.Environment)
	res := d.SendTest(ctx, cfg.Runtime)
	if res.Status != models.DeliverySent {
		return fmt.Errorf("test alert via %s failed: %s", res.Channel, res.Error)
	}
	logger.Info("test alert sent", "channel", res.Channel, "duration_ms", res.Duration.Milliseconds())
	return nil
}
