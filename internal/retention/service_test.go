package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"poolwatch/internal/db"
	"poolwatch/internal/models"
)

func TestRunPrunesOldAlerts(t *testing.T) {
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := db.Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	repo := db.NewRepository(sqldb)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	for id, at := range map[string]time.Time{
		"old":    now.AddDate(0, 0, -20),
		"recent": now.AddDate(0, 0, -2),
	} {
		if err := repo.RecordAlert(ctx, models.AlertRecord{ID: id, Kind: models.KindFailover, Summary: id, CreatedAt: at}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	svc := NewService(repo, 14, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	n, err := svc.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	rows, err := repo.RecentAlerts(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "recent" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestNewServiceDefaultsDays(t *testing.T) {
	svc := NewService(nil, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if svc.retentionDays != 14 {
		t.Fatalf("retentionDays = %d, want 14", svc.retentionDays)
	}
}
