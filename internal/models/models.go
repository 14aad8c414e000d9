package models

import (
	"strconv"
	"strings"
	"time"
)

// RequestRecord is one parsed proxy access log line.
type RequestRecord struct {
	TS                   time.Time
	Method               string
	URI                  string
	Status               int
	Pool                 string
	Release              string
	UpstreamAddr         string
	UpstreamStatus       string
	RequestTime          time.Duration
	UpstreamResponseTime time.Duration
}

// IsServerError reports whether the client-visible status is a 5xx.
func (r RequestRecord) IsServerError() bool {
	return r.Status >= 500 && r.Status <= 599
}

// LastUpstreamStatus returns the status of the final upstream attempt, or 0
// when the proxy never reached an upstream. nginx logs one value per attempt.
func (r RequestRecord) LastUpstreamStatus() int {
	parts := strings.Split(r.UpstreamStatus, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if p == "" || p == "-" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

type AlertKind string

const (
	KindFailover  AlertKind = "failover"
	KindErrorRate AlertKind = "error_rate"
)

// Event is a candidate alert produced by a detector.
type Event interface {
	Kind() AlertKind
	OccurredAt() time.Time
}

type TriggeringRequest struct {
	Method string
	URI    string

	// UpstreamStatus is the last upstream attempt's status, 0 when unknown.
	UpstreamStatus int
}

type FailoverEvent struct {
	From      string
	To        string
	ReleaseTo string
	At        time.Time
	Request   TriggeringRequest
}

func (FailoverEvent) Kind() AlertKind         { return KindFailover }
func (e FailoverEvent) OccurredAt() time.Time { return e.At }

type ErrorRateEvent struct {
	Rate       float64
	Threshold  float64
	WindowSize int
	ErrorCount int
	At         time.Time
}

func (ErrorRateEvent) Kind() AlertKind         { return KindErrorRate }
func (e ErrorRateEvent) OccurredAt() time.Time { return e.At }

// AlertRecord is the audit entry written for every dispatched alert.
type AlertRecord struct {
	ID        string
	Kind      AlertKind
	Summary   string
	Details   map[string]any
	CreatedAt time.Time
}

// Delivery is the outcome of one notification attempt.
type Delivery struct {
	AlertID  string
	Kind     AlertKind
	Channel  string
	Status   string
	Error    string
	Duration time.Duration
	At       time.Time
}

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// AlertSummary is a row of the recent alerts listing.
type AlertSummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
	Channel   string    `json:"channel,omitempty"`
	Status    string    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
}
