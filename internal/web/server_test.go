package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/alerts"
	"poolwatch/internal/config"
	"poolwatch/internal/db"
	"poolwatch/internal/metrics"
	"poolwatch/internal/models"
)

type fixedStatus alerts.Status

func (f fixedStatus) Status() alerts.Status { return alerts.Status(f) }

type fakeTester struct {
	calls int
	fail  bool
}

func (f *fakeTester) SendTest(_ context.Context, _ config.Runtime) models.Delivery {
	f.calls++
	if f.fail {
		return models.Delivery{Kind: "test", Channel: "fake", Status: models.DeliveryFailed, Error: "boom"}
	}
	return models.Delivery{Kind: "test", Channel: "fake", Status: models.DeliverySent}
}

type fixture struct {
	server *Server
	srv    http.Handler
	repo   *db.Repository
	store  *config.Store
	tester *fakeTester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)

	store := config.NewStore(config.DefaultRuntime(), "")
	tester := &fakeTester{}
	m := metrics.New()
	m.SetPool("blue")
	st := fixedStatus{CurrentPool: "blue", WindowLen: 12, WindowCap: 200, LinesRead: 12, LastSent: map[string]time.Time{}}
	s := NewServer(repo, st, store, tester, m.Registry, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{server: s, srv: s.Routes(), repo: repo, store: store, tester: tester}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	f.srv.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
	rr := f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", rr.Body.String())
}

func TestReadyCheckFailure(t *testing.T) {
	f := newFixture(t)
	f.server.AddReadyCheck("docker", func(context.Context) error { return errors.New("socket missing") })
	rr := f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "docker not ready")
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "blue", got["current_pool"])
	assert.Equal(t, 200.0, got["window_cap"])
	assert.Equal(t, 12.0, got["lines_read"])
	assert.Equal(t, map[string]any{}, got["deliveries_24h"])
}

func TestMaintenanceToggle(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodPost, "/api/maintenance", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, f.store.Snapshot().MaintenanceMode)

	rr = f.do(http.MethodPost, "/api/maintenance", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.store.Snapshot().MaintenanceMode)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/maintenance", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/maintenance", `nope`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(http.MethodGet, "/api/maintenance", "").Code)
}

func TestAlertsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.repo.RecordAlert(ctx, models.AlertRecord{ID: "a1", Kind: models.KindFailover, Summary: "Failover detected: blue -> green", CreatedAt: at}))
	require.NoError(t, f.repo.RecordDelivery(ctx, models.Delivery{AlertID: "a1", Kind: models.KindFailover, Channel: "slack", Status: models.DeliverySent, At: at}))
	require.NoError(t, f.repo.RecordAlert(ctx, models.AlertRecord{ID: "a2", Kind: models.KindErrorRate, Summary: "High error rate", CreatedAt: at.Add(time.Minute)}))

	rr := f.do(http.MethodGet, "/api/alerts?limit=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []models.AlertSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "a2", rows[0].ID)
	assert.Equal(t, "slack", rows[1].Channel)

	rr = f.do(http.MethodGet, "/api/alerts?kind=failover", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	require.Len(t, rows, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/alerts?limit=-1", "").Code)
}

func TestTestAlert(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/alerts/test", "").Code)
	f.tester.fail = true
	assert.Equal(t, http.StatusBadGateway, f.do(http.MethodPost, "/api/alerts/test", "").Code)
	assert.Equal(t, 2, f.tester.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `poolwatch_active_pool{pool="blue"} 1`)
}

func TestConfigEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"window_size": 200`)
}
