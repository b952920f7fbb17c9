// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/memes-airdrop/internal/logging"
	"github.com/memes-airdrop/internal/models"
	"github.com/memes-airdrop/internal/service"
	"github.com/memes-airdrop/internal/worker"
)

// Service interfaces for dependency injection and testing

// ParticipantServiceInterface defines the participant operations exposed over HTTP
type ParticipantServiceInterface interface {
	Register(ctx context.Context, input *service.RegisterInput) (*service.ParticipantView, error)
	Get(ctx context.Context, wallet string) (*service.ParticipantView, error)
	VerifyEmail(ctx context.Context, wallet string) (*service.ParticipantView, error)
	CompleteTask(ctx context.Context, wallet, task string) (*service.ParticipantView, error)
	SetReferrer(ctx context.Context, wallet, code string) (*service.ParticipantView, error)
}

// SchedulerInterface defines the export scheduler controls
type SchedulerInterface interface {
	GetStatus() *worker.ExportSchedulerStatus
	RunOnce(ctx context.Context) error
}

// PendingCounter counts participants waiting for export
type PendingCounter interface {
	CountEligible(ctx context.Context) (int64, error)
}

// BatchHistory lists recent audit rows. Optional.
type BatchHistory interface {
	ListRecent(ctx context.Context, limit int) ([]*models.ExportBatch, error)
}

// HealthCheck is one named dependency check for /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies groups what the server serves
type Dependencies struct {
	Participants ParticipantServiceInterface
	Scheduler    SchedulerInterface
	Pending      PendingCounter
	History      BatchHistory
	HealthChecks []HealthCheck
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *logging.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	participants ParticipantServiceInterface
	scheduler    SchedulerInterface
	pending      PendingCounter
	history      BatchHistory
	healthChecks []HealthCheck
	metrics      http.Handler
	logger       *logging.Logger
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerS    int // Per-client request rate on /api
	Burst           int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:       mux.NewRouter(),
		participants: deps.Participants,
		scheduler:    deps.Scheduler,
		pending:      deps.Pending,
		history:      deps.History,
		healthChecks: deps.HealthChecks,
		metrics:      deps.Metrics,
		logger:       logger.WithField("component", "api"),
		config:       config,
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(NewRateLimiter(s.config.RequestsPerS, s.config.Burst)))

	if s.participants != nil {
		api.HandleFunc("/participants", s.handleRegisterParticipant).Methods(http.MethodPost)
		api.HandleFunc("/participants/{address}", s.handleGetParticipant).Methods(http.MethodGet)
		api.HandleFunc("/participants/{address}/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
		api.HandleFunc("/participants/{address}/tasks/{task}", s.handleCompleteTask).Methods(http.MethodPost)
		api.HandleFunc("/participants/{address}/referrer", s.handleSetReferrer).Methods(http.MethodPost)
	}

	if s.scheduler != nil {
		api.HandleFunc("/export/status", s.handleExportStatus).Methods(http.MethodGet)
		api.HandleFunc("/export/run", s.handleExportRun).Methods(http.MethodPost)
	}
}

// Handler exposes the router for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
