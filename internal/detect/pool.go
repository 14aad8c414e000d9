// Package detect holds the stateful detectors fed by the consumption loop.
// Neither type is safe for concurrent use; the loop owns them exclusively.
package detect

import (
	"time"

	"poolwatch/internal/models"
)

// PoolTracker remembers which pool last served traffic and reports changes.
// The proxy routes to a single primary pool, so any change of the served-by
// field between consecutive records is a completed failover or failback.
type PoolTracker struct {
	baseline         string
	current          string
	lastTransitionAt time.Time
}

// NewPoolTracker starts in the unknown state, or already serving baseline
// when it is non-empty.
func NewPoolTracker(baseline string) *PoolTracker {
	return &PoolTracker{baseline: baseline, current: baseline}
}

// Observe advances the state machine with one record.
func (p *PoolTracker) Observe(rec models.RequestRecord) (models.FailoverEvent, bool) {
	if rec.Pool == "" {
		return models.FailoverEvent{}, false
	}
	if p.current == "" {
		p.current = rec.Pool
		return models.FailoverEvent{}, false
	}
	if rec.Pool == p.current {
		return models.FailoverEvent{}, false
	}
	ev := models.FailoverEvent{
		From:      p.current,
		To:        rec.Pool,
		ReleaseTo: rec.Release,
		At:        rec.TS,
		Request:   models.TriggeringRequest{Method: rec.Method, URI: rec.URI, UpstreamStatus: rec.LastUpstreamStatus()},
	}
	p.current = rec.Pool
	p.lastTransitionAt = rec.TS
	return ev, true
}

// Current returns the active pool, or "" while unknown.
func (p *PoolTracker) Current() string { return p.current }

func (p *PoolTracker) LastTransitionAt() time.Time { return p.lastTransitionAt }

// Reset returns to the startup baseline.
func (p *PoolTracker) Reset() {
	p.current = p.baseline
	p.lastTransitionAt = time.Time{}
}
