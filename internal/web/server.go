package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poolwatch/internal/alerts"
	"poolwatch/internal/config"
	"poolwatch/internal/db"
	"poolwatch/internal/models"
)

// StatusProvider exposes the watcher's last published state.
type StatusProvider interface {
	Status() alerts.Status
}

// TestSender pushes a synthetic notification past the gate.
type TestSender interface {
	SendTest(ctx context.Context, rt config.Runtime) models.Delivery
}

type Server struct {
	repo     *db.Repository
	status   StatusProvider
	runtime  *config.Store
	tester   TestSender
	registry prometheus.Gatherer
	log      *slog.Logger
	checks   []readyCheck
}

type readyCheck struct {
	name  string
	probe func(context.Context) error
}

// AddReadyCheck makes /readyz also depend on probe.
func (s *Server) AddReadyCheck(name string, probe func(context.Context) error) {
	s.checks = append(s.checks, readyCheck{name: name, probe: probe})
}

func NewServer(repo *db.Repository, status StatusProvider, runtime *config.Store, tester TestSender, registry prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{repo: repo, status: status, runtime: runtime, tester: tester, registry: registry, log: logger}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logMiddleware(s.log))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleConfig)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/alerts/test", s.handleTestAlert)
		r.Post("/maintenance", s.handleMaintenance)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	for _, c := range s.checks {
		if err := c.probe(r.Context()); err != nil {
			http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type statusResponse struct {
	alerts.Status
	Deliveries24h map[string]int `json:"deliveries_24h"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.repo.DeliveryCounts(r.Context(), time.Now().Add(-24*time.Hour))
	if err != nil {
		s.log.Error("delivery counts", "err", err)
		counts = map[string]int{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: s.status.Status(), Deliveries24h: counts})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Snapshot())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	rows, err := s.repo.RecentAlerts(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		s.log.Error("list alerts", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type maintenanceRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	rt := s.runtime.SetMaintenance(*req.Enabled)
	s.log.Info("maintenance mode changed", "enabled", rt.MaintenanceMode, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	d := s.tester.SendTest(r.Context(), s.runtime.Snapshot())
	if d.Status != models.DeliverySent {
		writeJSON(w, http.StatusBadGateway, d)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
