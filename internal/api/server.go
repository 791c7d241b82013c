// Package api provides the HTTP adapter over the comment pipeline, page-update
// fan-out, notification settings and counter repair.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/models"
	"github.com/wiki-engagement/internal/service"
	"github.com/wiki-engagement/internal/worker"
)

// Service interfaces for dependency injection and testing

// CommentServiceInterface defines the comment pipeline operations
type CommentServiceInterface interface {
	Create(ctx context.Context, req service.AdmitRequest) (*service.Admission, error)
	Delete(ctx context.Context, actorID, commentID string) error
	RecalculateParagraphCounts(ctx context.Context) (int64, error)
}

// PageServiceInterface defines the page update notification operation
type PageServiceInterface interface {
	NotifyUpdated(ctx context.Context, pageID, editorID string) int
}

// SettingsServiceInterface defines the notification settings operations
type SettingsServiceInterface interface {
	Get(ctx context.Context, accountID string) (*models.NotificationSettings, error)
	Update(ctx context.Context, accountID string, update service.SettingsUpdate) (*models.NotificationSettings, error)
}

// AccountLookup resolves the calling account for authorization checks
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
}

// SchedulerStatusProvider reports digest scheduler state for /health
type SchedulerStatusProvider interface {
	GetStatus() *worker.SchedulerStatus
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	comments   CommentServiceInterface
	pages      PageServiceInterface
	settings   SettingsServiceInterface
	accounts   AccountLookup
	scheduler  SchedulerStatusProvider
	validator  *RequestValidator
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int // per-client request rate
	Burst           int // per-client burst, default 10
}

// Dependencies groups the services the server routes to
type Dependencies struct {
	Comments  CommentServiceInterface
	Pages     PageServiceInterface
	Settings  SettingsServiceInterface
	Accounts  AccountLookup
	Scheduler SchedulerStatusProvider // optional
	Logger    *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:    mux.NewRouter(),
		comments:  deps.Comments,
		pages:     deps.Pages,
		settings:  deps.Settings,
		accounts:  deps.Accounts,
		scheduler: deps.Scheduler,
		validator: NewRequestValidator(),
		logger:    deps.Logger.WithField("component", "api"),
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rps := s.config.RequestsPerSec
	if rps <= 0 {
		rps = 20
	}
	rateLimiter := NewRateLimiter(rps, s.config.Burst)

	// order matters: logging sees the final status, recovery wraps handlers
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

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
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Comment endpoints
	api.HandleFunc("/comments", s.handleCreateComment).Methods("POST")
	api.HandleFunc("/comments/{id}", s.handleDeleteComment).Methods("DELETE")

	// Page endpoints
	api.HandleFunc("/pages/{id}/updated", s.handlePageUpdated).Methods("POST")

	// Notification settings endpoints
	api.HandleFunc("/accounts/{id}/notification-settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/accounts/{id}/notification-settings", s.handleUpdateSettings).Methods("PUT")

	// Admin endpoints
	api.HandleFunc("/admin/paragraphs/recalculate", s.handleRecalculateCounts).Methods("POST")

	// Preflight requests need a matched route so CORSMiddleware can answer them
	api.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "healthy",
		"service": "wiki-engagement",
	}
	if s.scheduler != nil {
		body["scheduler"] = s.scheduler.GetStatus()
	}
	respondJSON(w, http.StatusOK, body)
}

// Handler returns the routed handler with all middleware applied
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
