package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"recmirror/internal/config"
	"recmirror/internal/domain"

	"github.com/rs/zerolog"
)

// JobRunner triggers a job through the same dispatch path the scheduler uses.
type JobRunner interface {
	RunNow(ctx context.Context, jobID int64) (string, error)
}

// Exporter produces spreadsheet reports on demand.
type Exporter interface {
	ExportJobRuns(ctx context.Context, jobID int64, limit int) (string, error)
	ExportGroupStatus(ctx context.Context, groupID int64) (string, error)
}

// HTTPServer exposes the read surface and job controls over HTTP.
type HTTPServer struct {
	cfg     config.APIConfig
	manager domain.SyncManager
	records domain.RecordStore
	jobs    domain.CronJobStore
	cache   domain.StatusCache
	runner  JobRunner
	export  Exporter
	logger  *zerolog.Logger

	server *http.Server
	auth   *HTTPAuth
}

type Deps struct {
	Manager domain.SyncManager
	Records domain.RecordStore
	Jobs    domain.CronJobStore
	Cache   domain.StatusCache
	Runner  JobRunner
	Export  Exporter
	Logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		manager: deps.Manager,
		records: deps.Records,
		jobs:    deps.Jobs,
		cache:   deps.Cache,
		runner:  deps.Runner,
		export:  deps.Export,
		logger:  deps.Logger,
		auth:    NewHTTPAuth(cfg),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/syncs/active", srv.handleActiveSyncs)
	mux.HandleFunc("POST /api/v1/syncs", srv.handleStartSync)
	mux.HandleFunc("GET /api/v1/groups/{id}/progress", srv.handleGroupProgress)
	mux.HandleFunc("GET /api/v1/records/{id}/status", srv.handleRecordStatus)
	mux.HandleFunc("GET /api/v1/jobs", srv.handleListJobs)
	mux.HandleFunc("POST /api/v1/jobs", srv.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", srv.handleGetJob)
	mux.HandleFunc("PUT /api/v1/jobs/{id}", srv.handleUpdateJob)
	mux.HandleFunc("DELETE /api/v1/jobs/{id}", srv.handleDeleteJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/run", srv.handleRunJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}/runs", srv.handleListRuns)
	mux.HandleFunc("POST /api/v1/exports/groups/{id}", srv.handleExportGroup)
	mux.HandleFunc("POST /api/v1/exports/jobs/{id}", srv.handleExportJobRuns)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the configured middleware chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
