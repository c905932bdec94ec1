package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appshipping "github.com/erp/shipping/internal/application/shipping"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/cache"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"github.com/erp/shipping/internal/infrastructure/config"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/infrastructure/persistence"
	"github.com/erp/shipping/internal/infrastructure/storage"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"github.com/erp/shipping/internal/interfaces/http/handler"
	"github.com/erp/shipping/internal/interfaces/http/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
		Version:    cfg.App.Version,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// Telemetry providers are created first so every later component
	// picks up the global tracer and meter.
	exporter := telemetry.ExporterConfig{
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Environment:       cfg.App.Env,
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRatio:  cfg.Telemetry.SamplingRatio,
		ExporterConfig: exporter,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdown(log, "tracer provider", tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		ExportInterval: cfg.Telemetry.MetricsInterval,
		ExporterConfig: exporter,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdown(log, "meter provider", mp.Shutdown)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		ExporterConfig: exporter,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer shutdown(log, "logger provider", lp.Shutdown)

	if lp.IsEnabled() {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		log = lp.Attach(log, level)
		log.Info("Log export to collector enabled")
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiler.Enabled,
		ServerAddress:     cfg.Profiler.ServerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Profiler.BasicAuthUser,
		BasicAuthPassword: cfg.Profiler.BasicAuthPassword,
		ProfileTypes:      cfg.Profiler.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		if err := tp.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to link span profiles", zap.Error(err))
		}
	}

	log.Info("Starting shipping service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("sendcloud_api_version", cfg.SendCloud.APIVersion),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormConfig{
		Level:         cfg.Log.Level,
		SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
	})
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Shipping metrics
	shippingMetrics, err := telemetry.NewShippingMetrics(telemetry.ShippingMetricsConfig{
		Meter:                mp.Meter("erp-shipping/shipping"),
		Logger:               log,
		OpenShipmentProvider: telemetry.NewGormShipmentCountProvider(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize shipping metrics", zap.Error(err))
	}
	collectCtx, stopCollection := context.WithCancel(ctx)
	shippingMetrics.StartPeriodicCollection(collectCtx, cfg.Telemetry.MetricsInterval)
	defer func() {
		stopCollection()
		shippingMetrics.Stop()
	}()

	// Carrier gateway
	gateway, err := carrier.NewSendCloudGateway(&carrier.SendCloudConfig{
		APIKey:         cfg.SendCloud.APIKey,
		APISecret:      cfg.SendCloud.APISecret,
		Enabled:        cfg.SendCloud.Enabled,
		APIVersion:     cfg.SendCloud.APIVersion,
		BaseURL:        cfg.SendCloud.BaseURL,
		TimeoutSeconds: cfg.SendCloud.TimeoutSeconds,
	},
		carrier.WithLogger(log),
		carrier.WithMetrics(shippingMetrics),
	)
	if err != nil {
		log.Fatal("Failed to initialize SendCloud gateway", zap.Error(err))
	}
	if !gateway.IsEnabled() {
		log.Warn("SendCloud integration is inactive, carrier calls return empty results",
			zap.Bool("enabled", cfg.SendCloud.Enabled),
		)
	}

	// Idempotency store
	idempotencyStore, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis,
		cache.WithLogger(log),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	labelStorage := newLabelStorage(ctx, cfg, log)

	// Application service
	serviceOpts := []appshipping.ShippingServiceOption{
		appshipping.WithIdempotencyStore(idempotencyStore),
		appshipping.WithMetrics(shippingMetrics),
		appshipping.WithServiceConfig(appshipping.ServiceConfig{
			IdempotencyTTL:   cfg.Idempotency.TTL,
			LabelURLExpiry:   cfg.Tracking.LabelURLExpiry,
			RefreshBatchSize: cfg.Tracking.RefreshBatchSize,
		}),
	}
	if labelStorage != nil {
		serviceOpts = append(serviceOpts, appshipping.WithLabelStorage(labelStorage))
	}
	shippingService := appshipping.NewShippingService(
		gateway,
		persistence.NewGormShipmentRecordRepository(db.DB),
		log,
		serviceOpts...,
	)

	engine, err := router.NewEngine(router.EngineDeps{
		Config:        cfg,
		Logger:        log,
		MeterProvider: mp,
		Shipping:      handler.NewShippingHandler(shippingService),
		Health:        handler.NewHealthHandler(db, cfg.App.Version),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// newLabelStorage picks the label document store. S3 is used when storage is
// enabled; development falls back to the in-memory stub. Returns nil when
// labels cannot be stored.
func newLabelStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) shipping.LabelStorage {
	if !cfg.Storage.Enabled {
		if cfg.App.Env == "development" {
			log.Info("Object storage disabled, keeping labels in memory")
			return storage.NewStubLabelStorage()
		}
		log.Warn("Object storage disabled, label storing is unavailable")
		return nil
	}

	s3Storage, err := storage.NewS3LabelStorage(ctx, &cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		log.Fatal("Failed to initialize label storage", zap.Error(err))
	}
	if err := s3Storage.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare label bucket", zap.Error(err))
	}
	log.Info("Label storage ready", zap.String("bucket", s3Storage.Bucket()))
	return s3Storage
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
