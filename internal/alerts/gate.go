package alerts

import (
	"time"

	"poolwatch/internal/config"
	"poolwatch/internal/models"
)

// Decision is the gate's verdict on one candidate event.
type Decision struct {
	Admit  bool
	Reason string
	// Remaining is the cooldown left when Reason is ReasonCooldown.
	Remaining time.Duration
}

const (
	ReasonMaintenance = "maintenance"
	ReasonCooldown    = "cooldown"
)

// Gate applies maintenance suppression and a per-kind cooldown. It is owned
// by the consumption loop and is not safe for concurrent use.
type Gate struct {
	lastSent map[models.AlertKind]time.Time
}

func NewGate() *Gate {
	return &Gate{lastSent: map[models.AlertKind]time.Time{}}
}

// Admit decides whether an event of kind observed at now may be dispatched.
// An admitted event stamps the cooldown before delivery is attempted and the
// stamp is never rolled back.
func (g *Gate) Admit(kind models.AlertKind, now time.Time, rt config.Runtime) Decision {
	if rt.MaintenanceMode {
		return Decision{Reason: ReasonMaintenance}
	}
	if last, ok := g.lastSent[kind]; ok {
		if elapsed := now.Sub(last); elapsed < rt.Cooldown() {
			return Decision{Reason: ReasonCooldown, Remaining: rt.Cooldown() - elapsed}
		}
	}
	g.lastSent[kind] = now
	return Decision{Admit: true}
}

// LastSent returns a copy of the per-kind cooldown stamps.
func (g *Gate) LastSent() map[models.AlertKind]time.Time {
	out := make(map[models.AlertKind]time.Time, len(g.lastSent))
	for k, v := range g.lastSent {
		out[k] = v
	}
	return out
}
