package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"recast/internal/jobs"
	"recast/internal/logging"
	"recast/internal/pipeline"
	"recast/internal/preflight"
	"recast/internal/report"
	"recast/internal/services"
)

// Manager is the slice of the pipeline scheduler the API depends on.
type Manager interface {
	Submit(ctx context.Context, jobType jobs.JobType, req jobs.Request) (*jobs.Job, error)
	Status(ctx context.Context) (pipeline.StatusSummary, error)
}

// Store is the job persistence surface the read and cancel endpoints use.
type Store interface {
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	ListByStatus(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error)
	RequestCancel(ctx context.Context, id string) (*jobs.Job, bool, error)
}

// PreflightFunc produces current readiness results for GET /health/detail.
type PreflightFunc func(ctx context.Context) []preflight.Check

// Options collects the dependencies for New.
type Options struct {
	Store     Store
	Manager   Manager
	Preflight PreflightFunc
	Version   string
	Token     string
	Logger    *slog.Logger
}

// Server routes HTTP requests onto the store and pipeline manager. Construct
// with New and mount Handler on an http.Server owned by the daemon.
type Server struct {
	store     Store
	manager   Manager
	preflight PreflightFunc
	version   string
	token     string
	logger    *slog.Logger
}

// New builds a Server. An empty Options.Token disables authentication.
func New(opts Options) *Server {
	return &Server{
		store:     opts.Store,
		manager:   opts.Manager,
		preflight: opts.Preflight,
		version:   opts.Version,
		token:     strings.TrimSpace(opts.Token),
		logger:    logging.NewComponentLogger(opts.Logger, "api"),
	}
}

// Handler assembles the chi router. Health endpoints stay outside the
// authenticated group so probes work without credentials.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.annotate)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detail", s.handleHealthDetail)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleGet)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
		r.Get("/status", s.handleStatus)
		r.Get("/report/daily", s.handleDailyReport)
	})
	return r
}

// annotate copies the chi request id into the service context so request
// logs and downstream errors carry the correlation id.
func (s *Server) annotate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if rid := chimw.GetReqID(ctx); rid != "" {
			ctx = services.WithRequestID(ctx, rid)
			w.Header().Set("X-Request-Id", rid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithContext(r.Context(), s.logger).Info("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("duration", time.Since(start)))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, http.StatusBadRequest, services.KindValidation, "invalid request body: "+err.Error())
		return
	}
	job, err := s.manager.Submit(r.Context(), jobs.JobType(req.JobType), jobs.Request{
		VideoID: req.VideoID,
		Subject: req.Subject,
		Profile: req.Profile,
		Privacy: req.Privacy,
		DryRun:  req.DryRun,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, JobResponse{Job: job})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, JobResponse{Job: job})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, services.KindValidation,
				fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	var (
		list []*jobs.Job
		err  error
	)
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := jobs.ParseStatus(raw)
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, services.KindValidation,
				fmt.Sprintf("unknown status %q", raw))
			return
		}
		list, err = s.store.ListByStatus(r.Context(), status)
		if err == nil {
			// ListByStatus returns oldest first; the API contract is newest first.
			for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
				list[i], list[j] = list[j], list[i]
			}
			if limit > 0 && len(list) > limit {
				list = list[:limit]
			}
		}
	} else {
		list, err = s.store.List(r.Context(), limit)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*jobs.Job{}
	}
	s.writeJSON(w, r, http.StatusOK, JobListResponse{Jobs: list, Count: len(list)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, accepted, err := s.store.RequestCancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !accepted {
		s.writeJSON(w, r, http.StatusConflict, ErrorResponse{
			Error: ErrorBody{
				Code:    "conflict",
				Message: fmt.Sprintf("job is already %s", job.Status),
			},
			Status: job.Status,
		})
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, JobResponse{Job: job})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, StatusResponse{StatusSummary: summary, Version: s.version})
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	daily, err := report.BuildDaily(r.Context(), s.store, time.Now().UTC())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, daily)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleHealthDetail(w http.ResponseWriter, r *http.Request) {
	var checks []preflight.Check
	if s.preflight != nil {
		checks = s.preflight(r.Context())
	}
	status := "ok"
	if len(preflight.Failed(checks)) > 0 {
		status = "degraded"
	}
	s.writeJSON(w, r, http.StatusOK, HealthDetailResponse{Status: status, Checks: checks})
}

// writeServiceError maps the services failure taxonomy onto HTTP statuses:
// not-found to 404, validation to 400, anything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	s.writeError(w, r, status, services.FailureKind(err), services.Message(err))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSON(w, r, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.WithContext(r.Context(), s.logger).Error("response encode failed", logging.Error(err))
	}
}
