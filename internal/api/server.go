// Package api exposes the operational HTTP surface: health probes,
// Prometheus metrics and a small read/feedback API over the store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uxforge/design-scout/internal/design"
	"github.com/uxforge/design-scout/internal/metrics"
)

// FeedbackProcessor is the slice of the learning service the API uses.
type FeedbackProcessor interface {
	ProcessFeedback(ctx context.Context, designID string, rating int, customName string) (design.Feedback, error)
	DetectTrends(ctx context.Context, windowDays int) ([]design.TrendingPattern, error)
}

// Server wires HTTP handlers to the store and learning service.
type Server struct {
	router   chi.Router
	store    design.Store
	learning FeedbackProcessor
	logger   *zap.Logger
}

const (
	defaultLeaderboardSize = 50
	defaultTopPatterns     = 20
	defaultTrendWindowDays = 7
)

// NewServer constructs a Server with middleware and routes.
func NewServer(store design.Store, learning FeedbackProcessor, logger *zap.Logger) *Server {
	s := &Server{store: store, learning: learning, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.getLeaderboard)
		r.Route("/patterns", func(r chi.Router) {
			r.Get("/top", s.getTopPatterns)
			r.Get("/trending", s.getTrendingPatterns)
		})
		r.Post("/designs/{design_id}/feedback", s.postFeedback)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The store answers a trivial read before the probe passes.
	if _, _, err := s.store.GetLeaderboardFloor(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", defaultLeaderboardSize)
	entries, err := s.store.GetLeaderboard(r.Context(), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "leaderboard read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) getTopPatterns(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", defaultTopPatterns)
	patterns, err := s.store.GetTopPatterns(r.Context(), n)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "patterns read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

func (s *Server) getTrendingPatterns(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultTrendWindowDays)
	trending, err := s.learning.DetectTrends(r.Context(), days)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "trend detection failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trending": trending})
}

type feedbackRequest struct {
	Rating     int    `json:"rating"`
	CustomName string `json:"custom_name,omitempty"`
}

func (s *Server) postFeedback(w http.ResponseWriter, r *http.Request) {
	designID := chi.URLParam(r, "design_id")

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		s.writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	feedback, err := s.learning.ProcessFeedback(r.Context(), designID, req.Rating, req.CustomName)
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "design not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "feedback processing failed")
		return
	}
	s.writeJSON(w, http.StatusAccepted, feedback)
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
