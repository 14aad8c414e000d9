package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poolwatch/internal/alerts"
	"poolwatch/internal/config"
	"poolwatch/internal/db"
	"poolwatch/internal/docker"
	"poolwatch/internal/logs"
	"poolwatch/internal/metrics"
	"poolwatch/internal/notifier"
	"poolwatch/internal/retention"
	"poolwatch/internal/web"
)

const retentionInterval = 6 * time.Hour

type App struct {
	cfg config.Config
	log *slog.Logger

	db      *db.Repository
	store   *config.Store
	metrics *metrics.Metrics
	source  logs.Source

	dispatcher *alerts.Dispatcher
	watcher    *alerts.Watcher
	retention  *retention.Service
	web        *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sender, err := NewSender(cfg)
	if err != nil {
		return nil, err
	}
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)
	src, err := NewSource(cfg, logger.With("module", "logs"))
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	m := metrics.New()
	store := config.NewStore(cfg.Runtime, cfg.ConfigFile)
	d := alerts.NewDispatcher(sender, repo, m, logger.With("module", "dispatcher"), cfg.NotifyTimeout, cfg.Environment)
	w := alerts.NewWatcher(src, logs.NewParser(cfg.Pools), store, d, m, logger.With("module", "watcher"),
		alerts.WatcherOptions{Baseline: cfg.ActivePool})
	srv := web.NewServer(repo, w, store, d, m.Registry, logger.With("module", "web"))
	if cfg.LogSource == config.SourceDocker {
		srv.AddReadyCheck("docker", docker.NewClient(cfg.DockerSocket).Ping)
	}

	a := &App{
		cfg:        cfg,
		log:        logger,
		db:         repo,
		store:      store,
		metrics:    m,
		source:     src,
		dispatcher: d,
		watcher:    w,
		retention:  retention.NewService(repo, cfg.RetentionDays, logger.With("module", "retention")),
		web:        srv,
	}
	a.httpSrv = &http.Server{Addr: cfg.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return a, nil
}

// NewSender builds the notification channel named by NOTIFY_CHANNEL.
func NewSender(cfg config.Config) (notifier.Sender, error) {
	switch cfg.NotifyChannel {
	case config.ChannelSlack:
		if cfg.SlackWebhookURL == "" {
			return nil, config.ErrMissingWebhook
		}
		return notifier.NewSlack(cfg.SlackWebhookURL, cfg.NotifyTimeout), nil
	case config.ChannelTelegram:
		t := notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.NotifyTimeout)
		if !t.Enabled() {
			return nil, config.ErrMissingTelegram
		}
		return t, nil
	}
	return nil, fmt.Errorf("unsupported NOTIFY_CHANNEL %q", cfg.NotifyChannel)
}

// NewSource opens the live log stream named by LOG_SOURCE.
func NewSource(cfg config.Config, logger *slog.Logger) (logs.Source, error) {
	switch cfg.LogSource {
	case config.SourceFile:
		return logs.NewFileFollower(cfg.LogFile, cfg.LogFromStart, logger), nil
	case config.SourceDocker:
		return logs.NewDockerSource(docker.NewClient(cfg.DockerSocket), cfg.DockerContainer, logger), nil
	}
	return nil, fmt.Errorf("unsupported LOG_SOURCE %q", cfg.LogSource)
}

func (a *App) Run(ctx context.Context) error {
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server failed", "err", err)
		}
	}()
	go a.retention.Loop(ctx, retentionInterval)
	go a.reloadOnHangup(ctx)

	a.log.Info("watching access log",
		"source", a.cfg.LogSource,
		"file", a.cfg.LogFile,
		"container", a.cfg.DockerContainer,
		"pools", a.cfg.Pools,
		"active_pool", a.cfg.ActivePool,
		"runtime", a.store.Snapshot(),
	)
	runErr := a.watcher.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	_ = a.source.Close()
	if err := a.db.DB().Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// reloadOnHangup re-reads the runtime tunables on SIGHUP.
func (a *App) reloadOnHangup(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			rt, err := a.store.Reload()
			if err != nil {
				a.log.Error("config reload rejected", "err", err, "runtime", rt)
				continue
			}
			a.log.Info("config reloaded", "runtime", rt)
		}
	}
}
