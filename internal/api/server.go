// Package api serves the operational HTTP surface: health and status
// reads plus the seed and trigger controls.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leadharvest/leadscraper/internal/producer"
	"github.com/leadharvest/leadscraper/internal/scrape"
	"github.com/leadharvest/leadscraper/internal/telemetry"
)

// HealthSource exposes the coordinator's snapshot and manual trigger.
type HealthSource interface {
	Snapshot() (scrape.HealthSnapshot, bool)
	Tick(ctx context.Context) (scrape.HealthSnapshot, error)
}

// Seeder runs seed passes on demand.
type Seeder interface {
	Seed(ctx context.Context, req producer.SeedRequest) (producer.SeedResult, error)
}

// Config holds the API server knobs.
type Config struct {
	AuthEnabled bool
	APIKey      string
}

// Server wires the handlers to the pipeline.
type Server struct {
	store   scrape.StateStore
	seeder  Seeder
	health  HealthSource
	metrics *telemetry.Metrics
	cfg     Config
	logger  *zap.Logger
}

// New builds a Server.
func New(store scrape.StateStore, seeder Seeder, health HealthSource, metrics *telemetry.Metrics, cfg Config, logger *zap.Logger) *Server {
	return &Server{
		store:   store,
		seeder:  seeder,
		health:  health,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

// Router assembles the chi router. Read endpoints stay open; the
// mutating ones sit behind the API key when auth is enabled.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleLiveness)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/seed", s.handleSeed)
		r.Post("/trigger", s.handleTrigger)
	})
	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap, ok := s.health.Snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type statusResponse struct {
	TotalItems     int64                 `json:"total_items"`
	ProcessedItems int64                 `json:"processed_items"`
	FailedItems    int64                 `json:"failed_items"`
	QueueDepth     int64                 `json:"queue_depth"`
	Workers        []scrape.WorkerHealth `json:"workers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counters, err := s.store.GetQueueCounters(r.Context())
	if err != nil {
		s.logger.Error("status counters", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "state store unavailable")
		return
	}
	workers, err := s.store.ListWorkerHealth(r.Context())
	if err != nil {
		s.logger.Error("status workers", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "state store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TotalItems:     counters.TotalItems,
		ProcessedItems: counters.ProcessedItems,
		FailedItems:    counters.FailedItems,
		QueueDepth:     counters.Depth(),
		Workers:        workers,
	})
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req producer.SeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.seeder.Seed(r.Context(), req)
	if err != nil {
		s.logger.Error("seed request failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleTrigger runs one coordinator tick on demand and returns the
// fresh snapshot.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	snap, err := s.health.Tick(r.Context())
	if err != nil {
		s.logger.Error("manual health check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthEnabled {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "missing or invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
