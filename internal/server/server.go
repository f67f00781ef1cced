package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/audit"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/bounds"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/refine"
)

// DefaultMaxBodyBytes caps request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 4 << 20

// #region interfaces
// Refiner runs one refinement. *refine.Orchestrator satisfies it.
type Refiner interface {
	Refine(ctx context.Context, req refine.Request) (refine.Response, error)
}

// History reads recorded refinements. *audit.Log satisfies it.
type History interface {
	Get(ctx context.Context, id string) (audit.Entry, error)
	List(ctx context.Context, limit int) ([]audit.Entry, error)
}

// #endregion interfaces

// #region server
// Options configures the HTTP surface. A nil History disables the refinements routes.
type Options struct {
	MaxBodyBytes int64
	History      History
	Logger       *zap.Logger
}

// Server exposes the refinement pipeline over HTTP.
type Server struct {
	refiner Refiner
	history History
	maxBody int64
	logger  *zap.Logger
}

// New builds a server around refiner.
func New(refiner Refiner, opts Options) *Server {
	s := &Server{
		refiner: refiner,
		history: opts.History,
		maxBody: opts.MaxBodyBytes,
		logger:  opts.Logger,
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("http")
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.limitRequestBody)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/refine", s.handleRefine)
	if s.history != nil {
		r.Get("/v1/refinements", s.handleList)
		r.Get("/v1/refinements/{id}", s.handleGet)
	}
	return r
}

// #endregion server

// #region handlers
func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req refine.Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	resp, err := s.refiner.Refine(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, refine.ErrRequestShape):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, bounds.ErrBoundsUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("refine failed", zap.String("scan_id", req.ScanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.history.Get(r.Context(), id)
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.logger.Error("get refinement", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list refinements", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refinements": entries})
}

// #endregion handlers

// #region middleware
func (s *Server) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// #endregion middleware

// #region helpers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// #endregion helpers
