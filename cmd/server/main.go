package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengahub/be-gl-governance/internal/client"
	"github.com/jengahub/be-gl-governance/internal/config"
	"github.com/jengahub/be-gl-governance/internal/database"
	"github.com/jengahub/be-gl-governance/internal/handler"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/middleware"
	"github.com/jengahub/be-gl-governance/internal/repository"
	"github.com/jengahub/be-gl-governance/internal/repository/memory"
	"github.com/jengahub/be-gl-governance/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Governance & Ledger Engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize stores. An empty DB_HOST selects the in-memory store for
	// local development.
	var (
		accountStore  repository.AccountStore
		journalStore  repository.JournalStore
		budgetStore   repository.BudgetStore
		periodStore   repository.PeriodStore
		approvalStore repository.ApprovalStore
		policyStore   repository.PolicyStore
	)

	if cfg.Database.Host != "" {
		db, err := database.New(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		accountStore = repository.NewAccountRepository(db)
		journalStore = repository.NewJournalRepository(db)
		budgetStore = repository.NewBudgetRepository(db)
		periodStore = repository.NewPeriodRepository(db)
		approvalStore = repository.NewApprovalRepository(db)
		policyStore = repository.NewPolicyRepository(db)
	} else {
		store := memory.NewStore()
		accountStore = store
		journalStore = store
		budgetStore = store
		periodStore = store
		approvalStore = store
		policyStore = store
		log.Warn().Msg("DB_HOST not set, using in-memory store")
	}

	// Initialize external collaborators
	sequenceClient := client.NewSequenceClient(cfg.External.SequenceURL, log)
	advisoryClient := client.NewAdvisoryClient(cfg.External.AdvisoryURL, log)

	auditPublisher := client.NewAuditPublisher(cfg.Broker.KafkaBrokers, cfg.Broker.KafkaTopic, log)
	if auditPublisher != nil {
		defer auditPublisher.Close()
		log.Info().Strs("brokers", cfg.Broker.KafkaBrokers).Str("topic", cfg.Broker.KafkaTopic).
			Msg("Kafka audit publisher initialized")
	}

	notificationPublisher := client.NewNotificationPublisher(cfg.Broker.NATSURL, log)
	if notificationPublisher != nil {
		defer notificationPublisher.Close()
		log.Info().Str("url", cfg.Broker.NATSURL).Msg("NATS notification publisher initialized")
	}

	// Initialize services
	postingService := service.NewPostingService(accountStore, journalStore, periodStore, sequenceClient, log)
	budgetService := service.NewBudgetService(budgetStore, periodStore, accountStore, journalStore, log)
	policyService := service.NewPolicyService(policyStore, budgetService, log)
	workflowService := service.NewWorkflowService(approvalStore, log)

	// nil interface values must stay nil, not typed-nil wrappers
	var auditSink service.AuditSink
	if auditPublisher != nil {
		auditSink = auditPublisher
	}
	var eventSink service.EventSink
	if notificationPublisher != nil {
		eventSink = notificationPublisher
	}

	governanceService := service.NewGovernanceService(
		policyService, postingService, workflowService, approvalStore, auditSink, eventSink, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(
		governanceService, postingService, budgetService, policyService, workflowService, advisoryClient, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
