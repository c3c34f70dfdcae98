// Package server exposes the analysis service over HTTP: audio upload and
// scoring on POST /analyze, session history reads under /api/sessions, and
// the operational endpoints /healthz, /readyz, and /metrics.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/zenzone/internal/analysis"
	"github.com/MrWong99/zenzone/internal/health"
	"github.com/MrWong99/zenzone/internal/observe"
	"github.com/MrWong99/zenzone/pkg/audio/decode"
	"github.com/MrWong99/zenzone/pkg/history"
	"github.com/MrWong99/zenzone/pkg/provider/embeddings"
)

const (
	// defaultMaxUploadBytes bounds the multipart upload body. A minute of
	// 48 kHz stereo PCM WAV is about 11 MiB; compressed uploads are far
	// smaller.
	defaultMaxUploadBytes = 16 << 20

	// defaultMaxConcurrent bounds analyses running at once. Each analysis
	// holds a decoded float64 copy of the audio plus provider round trips.
	defaultMaxConcurrent = 8

	defaultListLimit = 20
	maxListLimit     = 100
)

// Server holds the HTTP handlers for the analysis service. Construct with
// [New] and mount with [Server.Routes].
type Server struct {
	pipeline *analysis.Pipeline
	store    history.Store
	embedder embeddings.Provider
	health   *health.Handler
	metrics  *observe.Metrics

	// mu guards the hot-reloadable limits below. See [Server.ApplyLimits].
	mu             sync.RWMutex
	sem            *semaphore.Weighted
	maxUploadBytes int64
}

// Option configures a Server during construction.
type Option func(*Server)

// WithStore enables the session read APIs.
func WithStore(s history.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithEmbeddings enables GET /api/sessions/similar.
func WithEmbeddings(e embeddings.Provider) Option {
	return func(srv *Server) { srv.embedder = e }
}

// WithHealth sets the handler backing /healthz and /readyz. Without it a
// checker-less handler is used (always ready).
func WithHealth(h *health.Handler) Option {
	return func(srv *Server) { srv.health = h }
}

// WithMetrics overrides the metrics instance, for test isolation.
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithMaxUploadBytes overrides the upload size cap.
func WithMaxUploadBytes(n int64) Option {
	return func(srv *Server) { srv.maxUploadBytes = n }
}

// WithMaxConcurrent overrides how many analyses may run at once.
func WithMaxConcurrent(n int64) Option {
	return func(srv *Server) { srv.sem = semaphore.NewWeighted(n) }
}

// New constructs a Server around the given pipeline.
func New(pipeline *analysis.Pipeline, opts ...Option) *Server {
	srv := &Server{
		pipeline:       pipeline,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(srv)
	}
	if srv.sem == nil {
		srv.sem = semaphore.NewWeighted(defaultMaxConcurrent)
	}
	if srv.health == nil {
		srv.health = health.New()
	}
	if srv.metrics == nil {
		srv.metrics = observe.DefaultMetrics()
	}
	return srv
}

// ApplyLimits replaces the concurrency and upload caps at runtime, for
// config hot reload. Zero values fall back to the defaults. Analyses that
// already hold a slot keep it; the new semaphore governs requests from the
// next call on.
func (srv *Server) ApplyLimits(maxConcurrent, maxUploadBytes int64) {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	srv.mu.Lock()
	srv.sem = semaphore.NewWeighted(maxConcurrent)
	srv.maxUploadBytes = maxUploadBytes
	srv.mu.Unlock()
}

// limits returns the current semaphore and upload cap.
func (srv *Server) limits() (*semaphore.Weighted, int64) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.sem, srv.maxUploadBytes
}

// Routes registers all endpoints on mux.
func (srv *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /analyze", srv.handleAnalyze)
	mux.HandleFunc("GET /api/sessions", srv.handleSessions)
	mux.HandleFunc("GET /api/sessions/similar", srv.handleSimilar)
	mux.Handle("GET /metrics", promhttp.Handler())
	srv.health.Register(mux)
}

// Handler returns the complete handler: all routes wrapped in the
// observability middleware.
func (srv *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	srv.Routes(mux)
	return observe.Middleware(srv.metrics)(mux)
}

// handleAnalyze accepts a multipart upload (file field "audio", optional
// "user_id" field) and returns the analysis report.
func (srv *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sem, maxUploadBytes := srv.limits()
	if !sem.TryAcquire(1) {
		writeError(w, http.StatusServiceUnavailable, "analysis capacity exhausted, retry shortly")
		return
	}
	defer sem.Release(1)

	ctx := r.Context()
	srv.metrics.ActiveAnalyses.Add(ctx, 1)
	defer srv.metrics.ActiveAnalyses.Add(ctx, -1)
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("audio")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "unreadable audio file")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio file")
		return
	}

	report, err := srv.pipeline.Analyze(ctx, data, r.FormValue("user_id"))
	if err != nil {
		srv.metrics.RecordAnalysis(ctx, "error", time.Since(start).Seconds(), 0)
		if errors.Is(err, decode.ErrUnknownFormat) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported audio format")
			return
		}
		slog.Error("analysis failed", "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	srv.metrics.RecordAnalysis(ctx, "ok", time.Since(start).Seconds(), report.StressScore)
	writeJSON(w, http.StatusOK, report)
}

// sessionDTO is the JSON shape of one stored session.
type sessionDTO struct {
	ID              int64              `json:"id"`
	UserID          string             `json:"user_id"`
	RecordedAt      time.Time          `json:"recorded_at"`
	StressScore     float64            `json:"stress_score"`
	Emotion         string             `json:"emotion"`
	Transcript      string             `json:"transcript"`
	Features        map[string]float64 `json:"features"`
	SuggestedAction string             `json:"suggested_action"`
}

func toDTOs(sessions []history.Session) []sessionDTO {
	out := make([]sessionDTO, len(sessions))
	for i, s := range sessions {
		out[i] = sessionDTO{
			ID:              s.ID,
			UserID:          s.UserID,
			RecordedAt:      s.RecordedAt,
			StressScore:     s.StressScore,
			Emotion:         s.Emotion,
			Transcript:      s.Transcript,
			Features:        s.Features,
			SuggestedAction: s.SuggestedAction,
		}
	}
	return out
}

// handleSessions returns recent sessions, newest first. Query parameters:
// user_id (optional filter) and limit.
func (srv *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if srv.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session history is not configured")
		return
	}

	sessions, err := srv.store.Recent(r.Context(), r.URL.Query().Get("user_id"), listLimit(r))
	if err != nil {
		slog.Error("session listing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "session listing failed")
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(sessions))
}

// handleSimilar embeds the query text and returns the closest stored
// sessions by transcript embedding. Requires an embeddings provider.
func (srv *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if srv.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session history is not configured")
		return
	}
	if srv.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "no embeddings provider configured")
		return
	}

	text := r.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "missing text query parameter")
		return
	}

	vec, err := srv.embedder.Embed(r.Context(), text)
	if err != nil {
		slog.Error("query embedding failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query embedding failed")
		return
	}

	sessions, err := srv.store.Similar(r.Context(), vec, listLimit(r))
	if err != nil {
		slog.Error("similarity search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(sessions))
}

// listLimit parses the limit query parameter, defaulting and capping it.
func listLimit(r *http.Request) int {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
