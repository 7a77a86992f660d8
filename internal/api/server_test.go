package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/producer"
	queuemem "github.com/leadharvest/leadscraper/internal/queue/memory"
	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/sources"
	statemem "github.com/leadharvest/leadscraper/internal/state/memory"
	storagemem "github.com/leadharvest/leadscraper/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDs struct {
	n int
}

func (g *fakeIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type fakeHealth struct {
	snap    scrape.HealthSnapshot
	ok      bool
	tickErr error
	ticks   int
}

func (h *fakeHealth) Snapshot() (scrape.HealthSnapshot, bool) { return h.snap, h.ok }

func (h *fakeHealth) Tick(context.Context) (scrape.HealthSnapshot, error) {
	h.ticks++
	if h.tickErr != nil {
		return scrape.HealthSnapshot{}, h.tickErr
	}
	return h.snap, nil
}

func newTestServer(t *testing.T, cfg Config) (*Server, *statemem.Store, *fakeHealth) {
	t.Helper()
	store := statemem.NewStore()
	queue := queuemem.NewQueue(256)
	blobs := storagemem.NewBlobStore()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)}
	catalog, err := sources.NewCatalog([]sources.Source{{
		Code:              "tx-tdlr",
		Name:              "Texas board",
		URLTemplate:       "https://example.test/{geo}",
		RequestsPerSecond: 1000,
		Category:          "contractor",
		Regions:           []string{"TX"},
	}})
	require.NoError(t, err)

	seeder := producer.New(store, queue, catalog, blobs, clock, &fakeIDs{},
		producer.Config{FailedRetryHours: 24, CompletedRetryDays: 7, TestGeoCodes: 5}, zap.NewNop())
	health := &fakeHealth{}

	return New(store, seeder, health, nil, cfg, zap.NewNop()), store, health
}

func TestLiveness(t *testing.T) {
	s, _, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthBeforeFirstTick(t *testing.T) {
	s, _, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthReturnsSnapshot(t *testing.T) {
	s, _, health := newTestServer(t, Config{})
	health.snap = scrape.HealthSnapshot{Score: 0.92, Label: scrape.WorkerHealthy, QueueDepth: 12}
	health.ok = true

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap scrape.HealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.InDelta(t, 0.92, snap.Score, 0.001)
	require.EqualValues(t, 12, snap.QueueDepth)
}

func TestStatus(t *testing.T) {
	s, store, _ := newTestServer(t, Config{})
	require.NoError(t, store.IncrementQueueCounters(context.Background(), 100, 60, 10))

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 100, resp.TotalItems)
	require.EqualValues(t, 30, resp.QueueDepth)
}

func TestSeedEndpoint(t *testing.T) {
	s, store, _ := newTestServer(t, Config{})
	body, _ := json.Marshal(producer.SeedRequest{Mode: producer.ModeTest, Regions: []string{"TX"}})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/seed", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result producer.SeedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 5, result.Queued)
	require.Equal(t, 5, store.QueueStateCount())
}

func TestSeedEndpointRejectsUnknownMode(t *testing.T) {
	s, _, _ := newTestServer(t, Config{})
	body := []byte(`{"mode":"dry-run"}`)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/seed", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRunsHealthCheck(t *testing.T) {
	s, _, health := newTestServer(t, Config{})
	health.snap = scrape.HealthSnapshot{Score: 0.75, Label: scrape.WorkerDegraded}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, health.ticks)

	var snap scrape.HealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.InDelta(t, 0.75, snap.Score, 0.001)
}

func TestTriggerReportsFailure(t *testing.T) {
	s, _, health := newTestServer(t, Config{})
	health.tickErr = fmt.Errorf("store down")

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthRequiredForMutations(t *testing.T) {
	s, _, _ := newTestServer(t, Config{AuthEnabled: true, APIKey: "sekrit"})
	body, _ := json.Marshal(producer.SeedRequest{Mode: producer.ModeTest, Regions: []string{"TX"}})

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/seed", bytes.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/seed", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Reads stay open.
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
