package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careloop/clinic-concierge/internal/api/router"
	"github.com/careloop/clinic-concierge/internal/app/bootstrap"
	"github.com/careloop/clinic-concierge/internal/clinic"
	appconfig "github.com/careloop/clinic-concierge/internal/config"
	"github.com/careloop/clinic-concierge/internal/conversation"
	"github.com/careloop/clinic-concierge/internal/curation"
	"github.com/careloop/clinic-concierge/internal/http/handlers"
	"github.com/careloop/clinic-concierge/internal/observability/metrics"
	"github.com/careloop/clinic-concierge/internal/tenancy"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	awsCfg, err := bootstrap.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	db, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if db == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	clinicStore, err := bootstrap.BuildClinicStore(redisClient, cfg)
	if err != nil {
		logger.Error("failed to build clinic store", "error", err)
		os.Exit(1)
	}
	if clinicStore == nil {
		logger.Warn("redis not configured, serving placeholder clinic configs")
	}
	clinicCache := bootstrap.BuildClinicCache(clinicStore, cfg, logger)

	conversationMetrics := metrics.NewConversationMetrics(nil)

	factory := bootstrap.BuildBookingFactory(cfg, clinicStore, clinicCache, logger)

	model, closeModel, err := bootstrap.BuildModelClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build model client", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeModel() }()

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	sessionStore := conversation.NewSessionStore(dynamoClient, cfg.SessionsTable, logger)

	engine := conversation.NewEngine(conversation.EngineOptions{
		Sessions:       sessionStore,
		Configs:        clinicCache,
		Adapters:       factory,
		Model:          model,
		Metrics:        conversationMetrics,
		Logger:         logger,
		ModelTimeout:   cfg.ModelTimeout,
		BookingTimeout: cfg.BookingTimeout,
		HistoryWindow:  cfg.HistoryWindow,
	})

	mappingStore := tenancy.NewMappingStore(db)
	resolver := tenancy.NewResolver(mappingStore, tenancy.NewLogAuditSink(logger), logger)

	exporter := curation.NewExporter(s3.NewFromConfig(awsCfg), cfg.TrainingCorpusBucket, logger)
	curator := curation.NewService(curation.ServiceOptions{
		Sessions:  sessionStore,
		Exporter:  exporter,
		Ledger:    curation.NewLedger(db),
		Metrics:   conversationMetrics,
		Logger:    logger,
		IdleAfter: cfg.ReviewIdleAfter,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go curator.RunSweeper(sweepCtx, cfg.ReviewIdleAfter/2)

	r := router.New(&router.Config{
		Logger:             logger,
		Webhook:            handlers.NewWebhookHandler(resolver, engine, conversationMetrics, logger),
		Curation:           handlers.NewAdminCurationHandler(curator, logger),
		Mappings:           handlers.NewAdminMappingsHandler(mappingStore, logger),
		Clinics:            buildClinicsHandler(clinicStore, clinicCache, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WebhookRate:        cfg.WebhookRate,
		WebhookBurst:       cfg.WebhookBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildClinicsHandler returns nil when no clinic store is wired, which
// disables the admin clinic routes.
func buildClinicsHandler(store *clinic.Store, cache *clinic.Cache, logger *logging.Logger) *handlers.AdminClinicsHandler {
	if store == nil {
		return nil
	}
	return handlers.NewAdminClinicsHandler(store, cache, logger)
}
