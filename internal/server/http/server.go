// Package httpserver provides the HTTP REST API of the paper tracker.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/database"
	"github.com/aidd/paper-tracker/internal/domain"
	"github.com/aidd/paper-tracker/internal/ingest"
	"github.com/aidd/paper-tracker/internal/observability"
	"github.com/aidd/paper-tracker/internal/papersources"
	"github.com/aidd/paper-tracker/internal/query"
	"github.com/aidd/paper-tracker/internal/taxonomy"
)

// PaperStore is the part of the repository the API mutates and reads
// directly. repository.PaperRepository implements it.
type PaperStore interface {
	Get(ctx context.Context, id string, source *domain.SourceType) (*domain.Paper, error)
	SetRelevance(ctx context.Context, id string, source *domain.SourceType, relevant *bool) (*domain.Paper, error)
	Delete(ctx context.Context, id string, source *domain.SourceType) (int64, error)
	DeleteBySource(ctx context.Context, source domain.SourceType) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteByDateRange(ctx context.Context, from, to time.Time, sources []domain.SourceType) (int64, error)
	StatsBySource(ctx context.Context) (map[domain.SourceType]int64, error)
}

// QueryService answers list and stats requests. *query.Service implements it.
type QueryService interface {
	List(ctx context.Context, f query.Filter, page, pageSize int) (*query.Page, error)
	Stats(ctx context.Context, f query.Filter) (*query.Stats, error)
}

// Poller runs an update request. *ingest.Coordinator implements it.
type Poller interface {
	Poll(ctx context.Context, req ingest.PollRequest) (*ingest.PollResult, error)
}

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// DeletionNotifier is told about administrative deletions.
// *events.Emitter implements it.
type DeletionNotifier interface {
	PapersDeleted(ctx context.Context, payload domain.PapersDeletedPayload)
}

// Deps are the collaborators of the API. Events and Metrics may be nil.
type Deps struct {
	Papers   PaperStore
	Query    QueryService
	Poller   Poller
	Health   HealthChecker
	Sources  *papersources.Registry
	Taxonomy *taxonomy.Taxonomy
	Events   DeletionNotifier
	Metrics  *observability.Metrics
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins feeds the CORS middleware. "*" allows every origin.
	AllowedOrigins []string
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	cfg        Config
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if deps.Taxonomy == nil {
		deps.Taxonomy = taxonomy.Default()
	}
	if deps.Sources == nil {
		deps.Sources = papersources.NewRegistry()
	}

	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   observability.WithComponent(logger, "http-server"),
	}
	s.validate.RegisterTagNameFunc(jsonFieldName)

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	r.Use(jsonContentTypeMiddleware)
	if s.deps.Metrics != nil {
		r.Use(metricsMiddleware(s.deps.Metrics))
	}

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/papers", func(r chi.Router) {
			r.Get("/", s.listPapers)
			r.Delete("/", s.deletePapers)
			r.Get("/stats", s.paperStats)
			r.Post("/update", s.updatePapers)
			r.Get("/{paperID}", s.getPaper)
			r.Delete("/{paperID}", s.deletePaper)
			r.Put("/{paperID}/relevance", s.setRelevance)
		})
		r.Get("/sources", s.listSources)
		r.Get("/categories", s.listCategories)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports readiness, which requires a reachable database.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	health := s.deps.Health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
