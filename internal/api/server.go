// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/run"
	"github.com/jobscout/jobscout/internal/scout"
)

// Server wires HTTP handlers to the run manager.
type Server struct {
	router  chi.Router
	manager *run.Manager
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(manager *run.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{manager: manager, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Post("/cancel", s.cancelRun)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRunRequest struct {
	Keywords []string `json:"keywords"`
	JobType  string   `json:"job_type"`
	Window   string   `json:"time_window"`
	Location string   `json:"location"`
	Sources  []string `json:"sources"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	spec, err := toSearchSpec(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.manager.StartRun(r.Context(), spec)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	rec, err := s.manager.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, scout.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": rec})
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if err := s.manager.CancelRun(r.Context(), runID); err != nil {
		switch {
		case errors.Is(err, scout.ErrRunNotFound):
			s.writeError(w, http.StatusNotFound, "run not found")
		case strings.Contains(err.Error(), "already"):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"status": string(scout.RunStatusCancelled),
	})
}

func toSearchSpec(req submitRunRequest) (scout.SearchSpec, error) {
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return scout.SearchSpec{}, errors.New("at least one keyword required")
	}

	spec := scout.SearchSpec{
		Keywords: keywords,
		JobType:  scout.JobTypeAll,
		Window:   scout.WindowAll,
		Location: scout.LocationAll,
		Sources:  req.Sources,
	}
	if req.JobType != "" {
		switch jt := scout.JobType(req.JobType); jt {
		case scout.JobTypeAll, scout.JobTypeRemote, scout.JobTypeFullTime,
			scout.JobTypeFreelance, scout.JobTypeHybrid, scout.JobTypePartTime:
			spec.JobType = jt
		default:
			return scout.SearchSpec{}, errors.New("unknown job_type")
		}
	}
	if req.Window != "" {
		switch wnd := scout.TimeWindow(req.Window); wnd {
		case scout.WindowAll, scout.Window24h, scout.Window3d, scout.Window7d:
			spec.Window = wnd
		default:
			return scout.SearchSpec{}, errors.New("unknown time_window")
		}
	}
	if req.Location != "" {
		switch loc := scout.Location(req.Location); loc {
		case scout.LocationAll, scout.LocationUSA, scout.LocationUK:
			spec.Location = loc
		default:
			return scout.SearchSpec{}, errors.New("unknown location")
		}
	}
	return spec, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
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
				s.logger.Error("panic recovered", zap.Any("panic", rec))
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
