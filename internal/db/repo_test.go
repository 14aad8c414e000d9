package db

import (
	"context"
	"testing"
	"time"

	"poolwatch/internal/models"
)

func TestRecentAlertsJoinsLatestDelivery(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	seedAlert(t, repo, ctx, "a1", models.KindFailover, now.Add(-2*time.Minute))
	seedAlert(t, repo, ctx, "a2", models.KindErrorRate, now.Add(-1*time.Minute))
	if err := repo.RecordDelivery(ctx, models.Delivery{AlertID: "a1", Channel: "slack", Status: models.DeliverySent, At: now}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}
	if err := repo.RecordDelivery(ctx, models.Delivery{AlertID: "a2", Channel: "slack", Status: models.DeliveryFailed, Error: "timeout", At: now}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}

	alerts, err := repo.RecentAlerts(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts len = %d, want 2", len(alerts))
	}
	if alerts[0].ID != "a2" || alerts[0].Status != models.DeliveryFailed || alerts[0].Error != "timeout" {
		t.Fatalf("unexpected newest alert: %+v", alerts[0])
	}
	if alerts[1].ID != "a1" || alerts[1].Status != models.DeliverySent || alerts[1].Channel != "slack" {
		t.Fatalf("unexpected oldest alert: %+v", alerts[1])
	}

	failovers, err := repo.RecentAlerts(ctx, string(models.KindFailover), 10)
	if err != nil {
		t.Fatalf("recent failovers: %v", err)
	}
	if len(failovers) != 1 || failovers[0].ID != "a1" {
		t.Fatalf("unexpected failover filter: %+v", failovers)
	}

	counts, err := repo.DeliveryCounts(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delivery counts: %v", err)
	}
	if counts[models.DeliverySent] != 1 || counts[models.DeliveryFailed] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	seedAlert(t, repo, ctx, "old", models.KindFailover, now.AddDate(0, 0, -30))
	seedAlert(t, repo, ctx, "new", models.KindFailover, now)
	if err := repo.RecordDelivery(ctx, models.Delivery{AlertID: "old", Channel: "slack", Status: models.DeliverySent, At: now.AddDate(0, 0, -30)}); err != nil {
		t.Fatalf("record delivery: %v", err)
	}

	n, err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -14))
	if err != nil {
		t.Fatalf("delete older: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	alerts, err := repo.RecentAlerts(ctx, "", 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "new" {
		t.Fatalf("unexpected remaining alerts: %+v", alerts)
	}
	var events int
	if err := repo.DB().QueryRow(`SELECT COUNT(*) FROM notification_events`).Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 0 {
		t.Fatalf("events = %d, want 0", events)
	}
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(sqldb)
}

func seedAlert(t *testing.T, repo *Repository, ctx context.Context, id string, kind models.AlertKind, at time.Time) {
	t.Helper()
	err := repo.RecordAlert(ctx, models.AlertRecord{ID: id, Kind: kind, Summary: string(kind) + " " + id, Details: map[string]any{"id": id}, CreatedAt: at})
	if err != nil {
		t.Fatalf("seed alert %s: %v", id, err)
	}
}
