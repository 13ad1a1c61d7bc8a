// Package server exposes the read surface: an HTTP/JSON API over the
// aggregation tables plus a gRPC endpoint for health probes and tooling.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer serves the query API, health probes, and Prometheus metrics on
// one listener.
type HTTPServer struct {
	server  *http.Server
	addr    string
	service *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewHTTPServer(
	addr string,
	service *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *HTTPServer {
	s := &HTTPServer{
		addr:    addr,
		service: service,
		health:  health,
		metrics: metrics,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/buckets/{scopeKind}/{bucketID}", s.handleGetBucket)

		r.Get("/history/global/daily", s.handleGlobalDaily)
		r.Get("/history/global/total", s.handleGlobalTotal)
		r.Get("/history/users/{user}/daily", s.handleUserDaily)
		r.Get("/history/users/{user}/total", s.handleUserTotal)
		r.Get("/history/users/{user}/symbols/{symbol}/daily", s.handleUserSymbolDaily)
		r.Get("/history/symbols/{symbol}/daily", s.handleSymbolDaily)
		r.Get("/history/symbols/{symbol}/total", s.handleSymbolTotal)

		r.Get("/audits/{kind}", s.handleListAudits)
		r.Get("/audits/{kind}/{id}", s.handleGetAudit)
	})

	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument records request counts and latency per chi route pattern so the
// endpoint label stays bounded.
func (s *HTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if s.metrics == nil {
			return
		}
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(ww.Status())).Inc()
		s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// --- Handlers ---

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	block, err := s.service.LastProcessedBlock(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_processed_block": block,
		"ready":                s.health.IsReady(),
	})
}

func (s *HTTPServer) handleGetBucket(w http.ResponseWriter, r *http.Request) {
	scopeKind := chi.URLParam(r, "scopeKind")
	bucketID := chi.URLParam(r, "bucketID")

	bucket, err := s.service.GetBucket(r.Context(), scopeKind, bucketID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if bucket == nil {
		s.writeNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, bucket)
}

func (s *HTTPServer) handleGlobalDaily(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	fromDay, ok := queryInt(r, "from_day")
	if !ok {
		s.writeBadRequest(w, r, "from_day is required")
		return
	}
	toDay, ok := queryInt(r, "to_day")
	if !ok {
		s.writeBadRequest(w, r, "to_day is required")
		return
	}

	buckets, err := s.service.GlobalDailyRange(r.Context(), source, fromDay, toDay)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

func (s *HTTPServer) handleGlobalTotal(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}

	bucket, err := s.service.GlobalTotal(r.Context(), source)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if bucket == nil {
		s.writeNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, bucket)
}

func (s *HTTPServer) handleUserDaily(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	user := chi.URLParam(r, "user")
	limit := queryLimit(r, 30, 365)

	var beforeDay *int64
	if v, ok := queryInt(r, "before_day"); ok {
		beforeDay = &v
	}

	buckets, err := s.service.UserDaily(r.Context(), source, user, limit, beforeDay)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

func (s *HTTPServer) handleUserTotal(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	user := chi.URLParam(r, "user")

	bucket, err := s.service.UserTotal(r.Context(), source, user)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if bucket == nil {
		s.writeNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, bucket)
}

func (s *HTTPServer) handleUserSymbolDaily(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	user := chi.URLParam(r, "user")
	symbol := chi.URLParam(r, "symbol")
	limit := queryLimit(r, 30, 365)

	buckets, err := s.service.UserSymbolDaily(r.Context(), source, user, symbol, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

func (s *HTTPServer) handleSymbolDaily(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	symbol := chi.URLParam(r, "symbol")
	limit := queryLimit(r, 30, 365)

	buckets, err := s.service.SymbolDaily(r.Context(), source, symbol, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}

func (s *HTTPServer) handleSymbolTotal(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		s.writeBadRequest(w, r, "source is required")
		return
	}
	symbol := chi.URLParam(r, "symbol")

	bucket, err := s.service.SymbolTotal(r.Context(), source, symbol)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if bucket == nil {
		s.writeNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, bucket)
}

func (s *HTTPServer) handleListAudits(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	limit := queryLimit(r, 50, 500)

	var beforeBlock *int64
	if v, ok := queryInt(r, "before_block"); ok {
		beforeBlock = &v
	}

	audits, err := s.service.ListAudits(r.Context(), kind, limit, beforeBlock)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"audits": audits})
}

func (s *HTTPServer) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	id := chi.URLParam(r, "id")

	audit, err := s.service.GetAudit(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if audit == nil {
		s.writeNotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, audit)
}

// --- Response helpers ---

func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	if s.metrics != nil {
		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		s.metrics.QueryErrors.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	}
	s.writeJSON(w, code, map[string]string{"error": "internal error"})
}

func (s *HTTPServer) writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *HTTPServer) writeNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func queryInt(r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func queryLimit(r *http.Request, def, max int) int {
	v, ok := queryInt(r, "limit")
	if !ok || v <= 0 {
		return def
	}
	if v > int64(max) {
		return max
	}
	return int(v)
}
