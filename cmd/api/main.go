package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-scheduling/cmd/mainconfig"
	"github.com/wolfman30/telehealth-scheduling/internal/acuity"
	"github.com/wolfman30/telehealth-scheduling/internal/api/router"
	"github.com/wolfman30/telehealth-scheduling/internal/appointments"
	"github.com/wolfman30/telehealth-scheduling/internal/audit"
	"github.com/wolfman30/telehealth-scheduling/internal/availability"
	appconfig "github.com/wolfman30/telehealth-scheduling/internal/config"
	"github.com/wolfman30/telehealth-scheduling/internal/directory"
	"github.com/wolfman30/telehealth-scheduling/internal/emr/athena"
	"github.com/wolfman30/telehealth-scheduling/internal/intake"
	"github.com/wolfman30/telehealth-scheduling/internal/notify"
	"github.com/wolfman30/telehealth-scheduling/internal/observability/metrics"
	"github.com/wolfman30/telehealth-scheduling/internal/postcommit"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling"
	"github.com/wolfman30/telehealth-scheduling/internal/scheduling/native"
	"github.com/wolfman30/telehealth-scheduling/internal/video"
	"github.com/wolfman30/telehealth-scheduling/internal/video/zoom"
	"github.com/wolfman30/telehealth-scheduling/pkg/errreport"
	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth-scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create db pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// the intake gate runs on database/sql
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	// Scheduling backends
	nativeBackend := native.New(pool, logger)
	backends := []scheduling.Backend{nativeBackend}
	if cfg.AcuityUserID != "" && cfg.AcuityAPIKey != "" {
		acuityClient := acuity.NewClient(cfg.AcuityBaseURL, cfg.AcuityUserID, cfg.AcuityAPIKey, logger)
		backends = append(backends, acuity.NewAdapter(acuityClient, logger))
	}
	if cfg.AthenaClientID != "" && cfg.AthenaClientSecret != "" {
		athenaClient := athena.NewClient(athena.Config{
			BaseURL:      cfg.AthenaBaseURL,
			ClientID:     cfg.AthenaClientID,
			ClientSecret: cfg.AthenaClientSecret,
			PracticeID:   cfg.AthenaPracticeID,
		}, logger)
		backends = append(backends, athena.NewAdapter(athenaClient, logger))
	}
	registry := scheduling.NewRegistry(backends...)

	// Videoconference provisioning
	var provisioner video.Provisioner = video.NewStubProvisioner(logger)
	if cfg.ZoomAPIKey != "" && cfg.ZoomAPISecret != "" {
		provisioner = zoom.NewClient(cfg.ZoomBaseURL, cfg.ZoomAPIKey, cfg.ZoomAPISecret, logger)
	}

	// Availability cache over the native slot ledger
	var availabilityCache *availability.Cache
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		availabilityCache = availability.NewCache(rdb, nativeBackend, 0, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, availability endpoint and resync disabled")
	}

	// Notification dispatch
	sender := buildEmailSender(ctx, cfg, logger)
	var dispatcher notify.Dispatcher
	if cfg.UseMemoryQueue || cfg.NotificationQueueURL == "" {
		dispatcher = notify.NewMemoryDispatcher(sender, logger)
	} else {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		dispatcher = notify.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL, logger)
	}

	// Metrics
	promRegistry := prometheus.NewRegistry()
	schedulingMetrics := metrics.NewSchedulingMetrics(promRegistry)

	runner := postcommit.NewRunner(logger, errreport.NewLogReporter(logger),
		postcommit.WithFailureObserver(schedulingMetrics.ObservePostCommitFailure))

	var resyncer appointments.AvailabilityResyncer
	if availabilityCache != nil {
		resyncer = availabilityCache
	}
	orchestrator := appointments.NewOrchestrator(appointments.OrchestratorDeps{
		DB:              pool,
		Repo:            appointments.NewRepository(pool),
		Accounts:        directory.NewAccountRepository(pool),
		Providers:       directory.NewProviderRepository(pool),
		Registry:        registry,
		Provisioner:     provisioner,
		Gate:            intake.NewSQLGate(sqlDB, cfg.IntakeGateMinScore),
		AuditStore:      audit.NewStore(pool),
		Dispatcher:      dispatcher,
		Resyncer:        resyncer,
		Runner:          runner,
		Metrics:         schedulingMetrics,
		Logger:          logger,
		ReconcileWindow: time.Duration(cfg.ReconcileWindowDays) * 24 * time.Hour,
	})

	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(orchestrator, logger),
		WebhookHandler:      appointments.NewWebhookHandler(orchestrator, cfg.SchedulingWebhookSecret, logger),
		MetricsHandler:      promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		StaffAuthSecret:     cfg.StaffAuthSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	if availabilityCache != nil {
		routerCfg.AvailabilityHandler = availability.NewHandler(availabilityCache, logger)
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// let queued post-commit tasks (notifications, resyncs) finish
	runner.Wait()

	logger.Info("server stopped")
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{FromEmail: cfg.SESFromEmail}, logger)
	case "sendgrid":
		if cfg.SendGridAPIKey != "" {
			return notify.NewSendGridSender(notify.SendGridConfig{
				APIKey:    cfg.SendGridAPIKey,
				FromEmail: cfg.SendGridFromEmail,
				FromName:  cfg.SendGridFromName,
			}, logger)
		}
	}
	logger.Warn("no email provider configured, using stub sender")
	return notify.NewStubEmailSender(logger)
}
