// Package metrics exposes the watcher's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poolwatch"

type Metrics struct {
	Registry *prometheus.Registry

	LinesTotal       prometheus.Counter
	ParseErrorsTotal prometheus.Counter
	StreamResets     prometheus.Counter
	EventsTotal      *prometheus.CounterVec
	SuppressedTotal  *prometheus.CounterVec
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	ErrorRate        prometheus.Gauge
	WindowSamples    prometheus.Gauge
	Maintenance      prometheus.Gauge
	CurrentPool      *prometheus.GaugeVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		LinesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "log_lines_total",
			Help: "Raw log lines read from the source.",
		}),
		ParseErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "parse_errors_total",
			Help: "Log lines skipped because they could not be parsed.",
		}),
		StreamResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_resets_total",
			Help: "Rotations or recreations of the log stream.",
		}),
		EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Candidate alert events produced by the detectors.",
		}, []string{"kind"}),
		SuppressedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "suppressed_total",
			Help: "Candidate events dropped by the gate.",
		}, []string{"kind", "reason"}),
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_total",
			Help: "Notification delivery attempts by outcome.",
		}, []string{"kind", "result"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dispatch_duration_seconds",
			Help:    "Time spent delivering one notification.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		ErrorRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "error_rate_percent",
			Help: "5xx percentage over the current window.",
		}),
		WindowSamples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "window_samples",
			Help: "Outcomes currently held in the error window.",
		}),
		Maintenance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "maintenance_mode",
			Help: "1 while alert dispatch is suppressed for maintenance.",
		}),
		CurrentPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_pool",
			Help: "1 for the pool currently serving traffic.",
		}, []string{"pool"}),
	}
}

// SetPool marks pool as the only active one.
func (m *Metrics) SetPool(pool string) {
	m.CurrentPool.Reset()
	if pool != "" {
		m.CurrentPool.WithLabelValues(pool).Set(1)
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (m *Metrics) SetMaintenance(v bool) { m.Maintenance.Set(boolGauge(v)) }
