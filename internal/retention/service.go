package retention

import (
	"context"
	"log/slog"
	"time"

	"poolwatch/internal/db"
)

type Service struct {
	repo          *db.Repository
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo *db.Repository, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

// Run prunes audit rows older than the retention period once.
func (s *Service) Run(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "err", err)
		return 0, err
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
	return n, nil
}

// Loop runs a cleanup immediately and then every interval until ctx ends.
func (s *Service) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	_, _ = s.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Run(ctx)
		}
	}
}
