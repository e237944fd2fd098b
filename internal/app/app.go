// Package app wires the transfer service together: configuration, logging,
// the content store, Redis, the export/import core and the HTTP server. All
// dependencies are built here and passed down explicitly.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/api"
	"github.com/sitesync/porter/internal/config"
	"github.com/sitesync/porter/internal/database"
	"github.com/sitesync/porter/internal/dedup"
	"github.com/sitesync/porter/internal/exporter"
	"github.com/sitesync/porter/internal/importer"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/media"
	"github.com/sitesync/porter/internal/metrics"
	redisclient "github.com/sitesync/porter/internal/redis"
	"github.com/sitesync/porter/internal/snapshot"
)

const (
	// DefaultShutdownTimeout is the timeout for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
	// mediaCacheTTL is how long sideloaded media translations are reused
	mediaCacheTTL = 30 * 24 * time.Hour
)

// App is the assembled transfer service
type App struct {
	config       *config.Config
	logger       logger.Logger
	db           *sqlx.DB
	repo         *database.Repository
	redisClient  *redis.Client
	dedupTracker *dedup.Tracker
	httpServer   *http.Server
	version      string
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New creates an App with all dependencies initialized
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "porter"),
		logger.String("version", opts.Version),
	)

	db, err := database.NewPostgresConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	repo := database.NewRepository(db)

	// Redis backs the media dedup cache and the activity feed. Both are
	// optional; without Redis imports simply re-download media.
	var redisClient *redis.Client
	var dedupTracker *dedup.Tracker
	var activity metrics.ActivityTracker
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			database.Close(db)
			_ = appLogger.Sync()
			return nil, err
		}

		dedupTracker = dedup.NewTracker(redisClient, mediaCacheTTL, appLogger)
		activity = metrics.NewTracker(redisClient, cfg.Site.AllowedTypes, appLogger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promCollectors := metrics.NewCollectors(registry)

	library, err := media.NewLibrary(cfg.Media.LibraryDir, cfg.Media.BaseURL)
	if err != nil {
		database.Close(db)
		_ = appLogger.Sync()
		return nil, fmt.Errorf("prepare media library: %w", err)
	}
	fetcher := media.NewFetcher(cfg.Media.FetchTimeout, cfg.Media.MaxFileSize, cfg.Media.SkipTLSVerify)
	rehydrator := media.NewRehydrator(fetcher, library, dedupTracker, appLogger)
	extractor := media.NewExtractor(cfg.Site.URL, repo)

	exportService := exporter.New(
		repo, repo, extractor,
		cfg.Site.AllowedTypes,
		activity, promCollectors, appLogger,
	)
	importService := importer.New(
		txRunner{repo: repo}, rehydrator, snapshot.NewBodyPolicy(),
		cfg.Site.AllowedTypes, cfg.Site.URL,
		activity, promCollectors, appLogger,
	)

	handlers := api.NewHandlers(
		exportService, importService,
		snapshot.NewCodec(cfg.Site.URL),
		activity, appLogger,
	)
	router := api.NewRouter(handlers, repo, redisClient, registry, cfg, appLogger)

	return &App{
		config:       cfg,
		logger:       appLogger,
		db:           db,
		repo:         repo,
		redisClient:  redisClient,
		dedupTracker: dedupTracker,
		httpServer:   router.NewServer(),
		version:      opts.Version,
	}, nil
}

// txRunner adapts the repository's transaction scope to the importer's
// store interface.
type txRunner struct {
	repo *database.Repository
}

func (t txRunner) WithinTx(ctx context.Context, fn func(tx importer.Stores) error) error {
	return t.repo.WithinTx(ctx, func(tx *database.Repository) error {
		return fn(tx)
	})
}

// Run starts the HTTP server and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server",
			logger.String("address", a.config.Server.Address),
			logger.Bool("debug", a.config.Debug),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		a.logger.Info("Shutting down gracefully",
			logger.String("signal", sig.String()),
		)
	case err := <-serverErr:
		a.logger.Error("Server error", logger.Error(err))
		runErr = err
	case <-ctx.Done():
		a.logger.Info("Context cancelled, shutting down")
	}

	a.shutdownHTTPServer()
	a.logger.Info("Service stopped")
	return runErr
}

// shutdownHTTPServer gracefully shuts down the HTTP server
func (a *App) shutdownHTTPServer() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Server shutdown error", logger.Error(err))
	} else {
		a.logger.Info("HTTP server stopped")
	}
}

// FlushMediaCache drops all cached media translations
func (a *App) FlushMediaCache(ctx context.Context) error {
	if a.dedupTracker == nil {
		return errors.New("media cache requires Redis to be enabled")
	}
	return a.dedupTracker.FlushAll(ctx)
}

// Close cleans up resources
func (a *App) Close() error {
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", logger.Error(err))
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("Failed to close Redis client", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}
