package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/switchguard/switchguard/internal/adapter/metrics"
	"github.com/switchguard/switchguard/internal/adapter/mfa"
	"github.com/switchguard/switchguard/internal/adapter/notify"
	"github.com/switchguard/switchguard/internal/adapter/persistence"
	"github.com/switchguard/switchguard/internal/adapter/schedule"
	"github.com/switchguard/switchguard/internal/config"
	"github.com/switchguard/switchguard/internal/domain"
	"github.com/switchguard/switchguard/internal/logger"
	"github.com/switchguard/switchguard/internal/ports"
	"github.com/switchguard/switchguard/internal/usecase"

	httpadapter "github.com/switchguard/switchguard/internal/adapter/http"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "switchguard",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env": cfg.Environment,
	})

	// Connect to database
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	structuredLogger.Info(ctx, "Database connection established", nil)

	// Redis-backed one-shot scheduler for auto-reverts
	scheduler, err := schedule.NewRedisScheduler(cfg.RedisURL, cfg.SchedulerPollInterval, structuredLogger)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}
	defer scheduler.Close()

	// Separate Redis client for the rate limit middleware
	var rateLimitClient *redis.Client
	if cfg.RateLimitEnabled {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		rateLimitClient = redis.NewClient(opt)
		defer rateLimitClient.Close()
	}

	// Repositories
	modeRepo := persistence.NewPostgresModeRepository(db)
	approvalRepo := persistence.NewPostgresApprovalRepository(db)
	auditRepo := persistence.NewPostgresAuditRepository(db)

	// Services
	notifier := notify.NewWebhookNotifier(cfg.OpsWebhookURL, cfg.CriticalWebhookURL, 10*time.Second, structuredLogger)
	metricsSink := metrics.NewLogMetricsSink(nil)

	var verifier ports.MFAVerifier
	switch cfg.MFAProvider {
	case "remote":
		verifier = mfa.NewRemoteVerifier(cfg.MFARemoteURL, cfg.MFATimeout, structuredLogger)
	default:
		verifier = mfa.NewTOTPVerifier(cfg.MFATOTPSecrets)
	}
	gate := usecase.NewMFAGate(verifier)
	overrideChecker := mfa.NewBreakGlassChecker(cfg.BreakGlassCodeHashes)

	policy := domain.DefaultSwitchPolicy()
	if len(cfg.ApproverRoles) > 0 {
		policy.RequiredApproverRoles = cfg.ApproverRoles
	}
	policy.AutoRevertEnabled = cfg.AutoRevertEnabled
	policy.AutoRevertAfter = cfg.AutoRevertWindow
	policy.RequireMFAForRollback = cfg.RequireMFAForRollback

	// Use cases
	orchestrator := usecase.NewOrchestrator(
		modeRepo,
		auditRepo,
		notifier,
		metricsSink,
		scheduler,
		gate,
		policy,
		cfg.OpsDistributionList,
		structuredLogger,
	)
	workflow := usecase.NewApprovalWorkflow(approvalRepo, auditRepo, notifier, orchestrator, policy, structuredLogger)
	orchestrator.SetApprovalWorkflow(workflow)

	rollback := usecase.NewEmergencyRollback(auditRepo, notifier, gate, overrideChecker, orchestrator, policy, structuredLogger)
	autoRevert := usecase.NewAutoRevert(modeRepo, auditRepo, orchestrator, structuredLogger)

	// Poll for due auto-revert timers in the background
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go scheduler.Run(schedulerCtx, autoRevert.HandleDue)

	server := httpadapter.NewServer(
		httpadapter.ServerConfig{
			Host:              cfg.ServerHost,
			Port:              cfg.ServerPort,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			JWTSecret:         cfg.JWTSecret,
			RateLimitEnabled:  cfg.RateLimitEnabled,
			RateLimitAttempts: cfg.RateLimitAttempts,
			RateLimitWindow:   cfg.RateLimitWindow,
		},
		orchestrator,
		workflow,
		rollback,
		auditRepo,
		rateLimitClient,
		structuredLogger,
	)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, nil)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down...", nil)
	stopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(ctx, "Server exited", nil)
}
