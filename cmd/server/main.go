package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/maneesh/musicbox/internal/config"
	"github.com/maneesh/musicbox/internal/handlers"
	"github.com/maneesh/musicbox/internal/library"
	"github.com/maneesh/musicbox/internal/logging"
	"github.com/maneesh/musicbox/internal/models"
	"github.com/maneesh/musicbox/internal/ratelim"
	"github.com/maneesh/musicbox/internal/storage"
	"github.com/maneesh/musicbox/internal/tracing"
	"github.com/maneesh/musicbox/internal/trending"
	"github.com/maneesh/musicbox/internal/upload"
	"github.com/sirupsen/logrus"
)

// closer releases a backend connection on shutdown
type closer func(context.Context) error

func main() {
	os.Exit(run())
}

// run starts the service and blocks until shutdown. It returns instead of
// exiting so deferred cleanup of opened backends always runs.
func run() int {
	// load .env if present
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		return 1
	}
	if envErr != nil {
		logger.Debug("no .env file found, using process environment")
	}

	logger.WithFields(logrus.Fields{
		"service": cfg.ServiceName,
		"port":    cfg.ServicePort,
	}).Info("Starting musicbox service...")

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(cfg.TracingEnabled, cfg.ServiceName, cfg.JaegerEndpoint, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracer")
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.WithError(err).Error("Error shutting down tracer")
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	var closers []closer
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				logger.WithError(err).Error("Error closing backend")
			}
		}
	}()

	blobs, err := newBlobStore(startCtx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize blob store")
		return 1
	}

	docs, closeDocs, err := newDocumentStore(startCtx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize document store")
		return 1
	}
	closers = append(closers, closeDocs)

	events, closeEvents, err := newEventPublisher(startCtx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize event publisher")
		return 1
	}
	closers = append(closers, closeEvents)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if rc, ok := events.(*storage.RedisClient); ok {
		go watchMirrorFailures(watchCtx, rc, logging.Zone(logger, "events"))
	}

	// Initialize core services
	coordinator := upload.NewCoordinator(
		upload.NewValidator(cfg.GetMaxFileSizeBytes()),
		blobs,
		docs,
		events,
		logging.Zone(logger, "upload"),
		upload.Options{
			Thumbnails:     cfg.ThumbnailsEnabled,
			ThumbnailWidth: cfg.ThumbnailWidth,
		},
	)
	libraryService := library.NewService(docs, logging.Zone(logger, "library"))
	trendingClient := trending.NewClient(cfg.TrendingAPIURL, logging.Zone(logger, "trending"))

	var limiter *ratelim.RateLimiter
	stopLimiter := make(chan struct{})
	defer close(stopLimiter)
	if cfg.RateLimitRPS > 0 {
		limiter = ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(time.Minute, stopLimiter)
	}

	httpLogger := logging.Zone(logger, "http")
	handler := handlers.NewRouter(handlers.RouterConfig{
		Upload:      handlers.NewUploadHandler(coordinator, httpLogger),
		Blobs:       handlers.NewBlobHandler(blobs, httpLogger),
		Library:     handlers.NewLibraryHandler(libraryService, httpLogger),
		Trending:    handlers.NewTrendingHandler(trendingClient, httpLogger),
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
		Logger:      httpLogger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.GetListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	code := 0
	select {
	case <-quit:
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
		code = 1
	}

	logger.Info("Shutting down server...")
	stopWatch()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		code = 1
	}

	logger.Info("Server exited")
	return code
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (storage.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BackendMinIO:
		logger.WithField("endpoint", cfg.MinIOEndpoint).Info("Connecting to MinIO...")
		return storage.NewMinioClient(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			cfg.PublicPrefix,
			logger,
		)
	case config.BackendMemory:
		logger.Warn("Using in-memory blob store, uploads are lost on restart")
		return storage.NewMemoryBlobStore(cfg.PublicPrefix), nil
	default:
		logger.WithField("dir", cfg.UploadDir).Info("Using local blob store")
		ls, err := storage.NewLocalBlobStore(cfg.UploadDir, cfg.PublicPrefix)
		if err != nil {
			return nil, err
		}
		if err := ls.EnsureDirs(upload.SongsPrefix, upload.CoversPrefix, upload.ThumbsPrefix); err != nil {
			return nil, err
		}
		return ls, nil
	}
}

func newDocumentStore(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (storage.DocumentStore, closer, error) {
	switch cfg.DocBackend {
	case config.BackendTiDB:
		logger.WithField("host", cfg.TiDBHost).Info("Connecting to TiDB...")
		tc, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
		if err != nil {
			return nil, nil, err
		}
		return tc, func(context.Context) error { return tc.Close() }, nil
	case config.BackendMemory:
		logger.Warn("Using in-memory document store, data is lost on restart")
		return storage.NewMemoryDocStore(), func(context.Context) error { return nil }, nil
	default:
		logger.WithField("database", cfg.MongoDatabase).Info("Connecting to MongoDB...")
		mc, err := storage.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return mc, mc.Close, nil
	}
}

func newEventPublisher(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (storage.EventPublisher, closer, error) {
	if !cfg.RedisEnabled {
		return storage.NopPublisher{}, func(context.Context) error { return nil }, nil
	}

	logger.WithField("addr", cfg.GetRedisAddr()).Info("Connecting to Redis...")
	rc, err := storage.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.EventsChannel)
	if err != nil {
		return nil, nil, err
	}
	return rc, func(context.Context) error { return rc.Close() }, nil
}

// watchMirrorFailures logs every published upload whose saved-song mirror
// did not go through, so lost appends can be repaired by hand.
func watchMirrorFailures(ctx context.Context, rc *storage.RedisClient, logger logrus.FieldLogger) {
	events, err := rc.Subscribe(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to subscribe to upload events")
		return
	}

	for event := range events {
		if event.Mirror == models.MirrorAppended {
			continue
		}
		logger.WithFields(logrus.Fields{
			"upload_id": event.UploadID,
			"username":  event.Username,
			"mirror":    event.Mirror,
			"error":     event.MirrorError,
		}).Warn("upload not mirrored into saved songs")
	}
}
