package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"poolwatch/internal/models"
)

// Repository is the audit trail of dispatched alerts and delivery outcomes.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) RecordAlert(ctx context.Context, a models.AlertRecord) error {
	b, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshal alert details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO alerts (id,kind,summary,details_json,created_ts) VALUES (?,?,?,?,?)`,
		a.ID, string(a.Kind), a.Summary, string(b), a.CreatedAt.UTC())
	return err
}

func (r *Repository) RecordDelivery(ctx context.Context, d models.Delivery) error {
	var lastErr any
	if d.Error != "" {
		lastErr = d.Error
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (alert_id,channel,status,last_error,duration_ms,ts) VALUES (?,?,?,?,?,?)`,
		d.AlertID, d.Channel, d.Status, lastErr, d.Duration.Milliseconds(), d.At.UTC())
	return err
}

// RecentAlerts lists the newest alerts with their latest delivery outcome.
func (r *Repository) RecentAlerts(ctx context.Context, kind string, limit int) ([]models.AlertSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT a.id,a.kind,a.summary,a.created_ts,
		COALESCE(n.channel,''),COALESCE(n.status,''),COALESCE(n.last_error,'')
		FROM alerts a
		LEFT JOIN notification_events n ON n.id = (SELECT MAX(id) FROM notification_events WHERE alert_id=a.id)
		WHERE (? = '' OR a.kind = ?)
		ORDER BY a.created_ts DESC, a.rowid DESC LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.AlertSummary, 0, limit)
	for rows.Next() {
		var s models.AlertSummary
		if err := rows.Scan(&s.ID, &s.Kind, &s.Summary, &s.CreatedAt, &s.Channel, &s.Status, &s.Error); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeliveryCounts returns the number of deliveries per status since from.
func (r *Repository) DeliveryCounts(ctx context.Context, from time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_events WHERE ts >= ? GROUP BY status`, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// DeleteOlderThan prunes alerts created before cutoff along with their
// delivery events, and returns the number of alerts removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notification_events WHERE alert_id IN (SELECT id FROM alerts WHERE created_ts < ?)`, cutoff.UTC()); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM alerts WHERE created_ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return n, nil
}
