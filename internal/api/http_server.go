package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"leecher/internal/batch"
	"leecher/internal/config"
	"leecher/internal/metrics"
	"leecher/internal/models"

	"github.com/rs/zerolog"
)

// Scheduler is the registry boundary the HTTP API exposes.
type Scheduler interface {
	Submit(ctx context.Context, projectName string, cmd models.BatchCommand) (*models.ScheduleQueueItem, error)
	Cancel(ctx context.Context, projectName string) (int, error)
	ListProjects(ctx context.Context, q models.ListQuery) ([]*models.ScheduleProject, error)
	ListQueue(ctx context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error)
	ListLogs(ctx context.Context, q models.ListQuery) ([]*models.ScheduleLog, error)
}

type Drainer interface {
	Drain(ctx context.Context) (*models.DrainReport, error)
}

// Batcher runs immediate, unscheduled batches.
type Batcher interface {
	Create(ctx context.Context, cmd models.BatchCommand) models.BatchResult
	Update(ctx context.Context, cmd models.BatchCommand) (models.BatchResult, error)
	Check(ctx context.Context, cmd models.BatchCommand) (*batch.CheckResult, error)
}

// Services are the collaborators behind the HTTP routes.
type Services struct {
	Scheduler Scheduler
	Drainer   Drainer
	Batcher   Batcher
	Store     Pinger
}

// HTTPServer exposes the schedule, batch and hierarchy endpoints.
type HTTPServer struct {
	cfg    *config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg *config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, auth: NewHTTPAuth(cfg), log: zerolog.Nop()}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealthz)
	mux.HandleFunc("GET /readyz", srv.handleReadyz)

	mux.HandleFunc("GET /api/v1/schedule/projects", srv.handleListProjects)
	mux.HandleFunc("GET /api/v1/schedule/queue", srv.handleListQueue)
	mux.HandleFunc("GET /api/v1/schedule/logs", srv.handleListLogs)
	mux.HandleFunc("GET /api/v1/schedule/logs/export", srv.handleExportLogs)
	mux.HandleFunc("POST /api/v1/schedule/drain", srv.handleDrain)
	mux.HandleFunc("POST /api/v1/schedule/{project}", srv.handleSubmit)
	mux.HandleFunc("DELETE /api/v1/schedule/{project}", srv.handleCancel)

	mux.HandleFunc("GET /api/v1/batch/check", srv.handleBatchCheck)
	mux.HandleFunc("PUT /api/v1/batch/{project}", srv.handleBatchCreate)
	mux.HandleFunc("POST /api/v1/batch/{project}", srv.handleBatchUpdate)

	mux.HandleFunc("POST /api/v1/hierarchy/map", srv.handleMapHierarchy)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		// батч может идти долго: WriteTimeout не задаём
	}
	return srv
}

// Handler returns the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, clients: clientIndex(cfg), limiter: newRateLimiter(cfg)}
}

var (
	errPermissionDenied = errors.New("permission denied")
	errRateLimited      = errors.New("rate limit exceeded")
)

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if a.cfg.RateLimit.RPS > 0 && !a.limiter.getLimiter(a.clientKey(r)).Allow() {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(headerName(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault)))
	extra := strings.TrimSpace(r.Header.Get(headerName(a.cfg.Auth.HeaderExtra, apiExtraHeaderDefault)))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	if !hasPermission(client, requiredPermissionHTTP(r)) {
		return errPermissionDenied
	}
	return nil
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/v1/schedule"):
		if r.Method == http.MethodGet {
			return permReadSchedule
		}
		return permWriteSchedule
	case strings.HasPrefix(path, "/api/v1/batch"):
		return permRunBatch
	default:
		return ""
	}
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(headerName(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault))); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		s.log.Info().
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
