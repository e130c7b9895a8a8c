package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
	"github.com/switchguard/switchguard/internal/usecase"
)

// Server represents the HTTP server
type Server struct {
	addr   string
	server *http.Server
	log    logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	JWTSecret         string
	RateLimitEnabled  bool
	RateLimitAttempts int
	RateLimitWindow   time.Duration
}

// NewServer creates a new HTTP server
func NewServer(
	config ServerConfig,
	orchestrator *usecase.Orchestrator,
	workflow *usecase.ApprovalWorkflow,
	rollback *usecase.EmergencyRollback,
	audit ports.AuditRepository,
	rateLimitClient *redis.Client,
	log logger.Logger,
) *Server {
	modeHandler := NewModeHandler(orchestrator, rollback, audit)
	approvalHandler := NewApprovalHandler(workflow)

	router := mux.NewRouter()

	modeHandler.RegisterRoutes(router)
	approvalHandler.RegisterRoutes(router)

	router.Use(correlationMiddleware)
	router.Use(loggingMiddleware(log))
	router.Use(recoveryMiddleware(log))
	router.Use(actorMiddleware(config.JWTSecret))
	if config.RateLimitEnabled {
		router.Use(rateLimitMiddleware(rateLimitClient, config.RateLimitAttempts, config.RateLimitWindow, log))
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	addr := config.Host + ":" + config.Port

	return &Server{
		addr: addr,
		log:  log,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info(context.Background(), "Starting HTTP server", map[string]interface{}{
		"addr": s.addr,
	})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
