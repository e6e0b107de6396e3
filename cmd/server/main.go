package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	reconapp "github.com/invoicehub/backend/internal/application/reconciliation"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/infrastructure/auth"
	"github.com/invoicehub/backend/internal/infrastructure/cache"
	"github.com/invoicehub/backend/internal/infrastructure/config"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/infrastructure/persistence"
	"github.com/invoicehub/backend/internal/infrastructure/statement"
	"github.com/invoicehub/backend/internal/infrastructure/storage"
	"github.com/invoicehub/backend/internal/infrastructure/telemetry"
	"github.com/invoicehub/backend/internal/interfaces/http/handler"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
	"github.com/invoicehub/backend/internal/interfaces/http/router"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	_ "github.com/invoicehub/backend/docs"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			InvoiceHub API
//	@version		1.0
//	@description	Document numbering and bank reconciliation for small-business invoicing

//	@contact.name	API Support
//	@contact.url	https://github.com/invoicehub/backend

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()

	// OpenTelemetry providers; each one is a no-op when disabled
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		// Rebuild the logger so every record is also exported over OTLP
		log, err = logger.New(logCfg, logsProvider.ZapCore(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting InvoiceHub backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	meter := meterProvider.Meter("invoicehub")
	domainMetrics, err := telemetry.NewDomainMetrics(meter)
	if err != nil {
		log.Fatal("Failed to register domain metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithRetryableErrors(persistence.IsTransientConflict))
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = true
		tracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		if cfg.Telemetry.DBSlowQueryThresh > 0 {
			tracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		}
		tracing.DBName = cfg.Database.DBName
		if err := telemetry.NewDBTracingPlugin(tracing, log).Register(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully")

	// Repositories
	configRepo := persistence.NewGormNumberingConfigRepository(db.DB)
	sequenceRepo := persistence.NewGormSequenceRepository(db.DB)
	txRepo := persistence.NewGormBankTransactionRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	sessionRepo := persistence.NewGormSessionRepository(db.DB)
	txManager := persistence.NewTransactionManager(db.DB)

	// Numbering
	numberingOpts := []numberingapp.ServiceOption{
		numberingapp.WithRetryPolicy(numberingapp.RetryPolicy{
			MaxAttempts:    cfg.Numbering.MaxAttempts,
			InitialBackoff: cfg.Numbering.InitialBackoff,
			MaxBackoff:     cfg.Numbering.MaxBackoff,
		}),
		numberingapp.WithMetrics(domainMetrics),
	}
	if cfg.Numbering.IdempotencyEnabled {
		store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(!cfg.IsProduction()),
		).CreateStore(ctx)
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() {
			_ = store.Close()
		}()
		numberingOpts = append(numberingOpts, numberingapp.WithIdempotencyStore(store, cfg.Numbering.IdempotencyTTL))
	}
	numberingService := numberingapp.NewService(configRepo, sequenceRepo, numberingOpts...)

	// Reconciliation
	reconOpts := []reconapp.ServiceOption{
		reconapp.WithMatcher(reconciliation.NewMatcher(
			reconciliation.WithAmountTolerance(cfg.Reconciliation.AmountTolerance),
			reconciliation.WithAbsoluteAmountPass(cfg.Reconciliation.AbsoluteAmountPass),
			reconciliation.WithCandidateWindow(cfg.Reconciliation.CandidateWindowDays),
		)),
		reconapp.WithTransactionRunner(txManager),
		reconapp.WithStatementParser(statement.NewParser(statement.WithMaxFileSize(cfg.HTTP.MaxUploadSize))),
		reconapp.WithMetrics(domainMetrics),
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3StatementArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize statement archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Statement archive bucket unavailable", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		reconOpts = append(reconOpts, reconapp.WithStatementArchive(archive))
	}
	reconService := reconapp.NewService(txRepo, paymentRepo, sessionRepo, reconOpts...)

	// HTTP
	middleware.SetupValidator()
	engine := router.NewEngine(router.Options{
		Config:    cfg,
		Logger:    log,
		Meter:     meter,
		Validator: auth.NewJWTValidator(cfg.JWT),
	}, router.Handlers{
		System:         handler.NewSystemHandler(db, cfg.App.Name, version),
		Numbering:      handler.NewNumberingHandler(numberingService),
		Reconciliation: handler.NewReconciliationHandler(reconService),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Flush telemetry in parallel; each exporter has its own pending batch
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	})
	wg.Go(func() {
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Meter shutdown failed", zap.Error(err))
		}
	})
	wg.Go(func() {
		if err := logsProvider.Shutdown(shutdownCtx); err != nil {
			log.Warn("Log exporter shutdown failed", zap.Error(err))
		}
	})
	wg.Go(func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
	})
	wg.Wait()

	log.Info("Server exited gracefully")
}
