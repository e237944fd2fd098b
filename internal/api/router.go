package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sitesync/porter/internal/config"
	"github.com/sitesync/porter/internal/logger"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	serviceVersion       = "1.2.0"
)

// Pinger checks content-store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router wires handlers, middleware and health endpoints into a gin engine
type Router struct {
	handlers    *Handlers
	store       Pinger
	redisClient *redis.Client
	gatherer    prometheus.Gatherer
	cfg         *config.Config
	logger      logger.Logger
}

// NewRouter creates a new API router. redisClient and gatherer may be nil.
func NewRouter(
	handlers *Handlers,
	store Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
	log logger.Logger,
) *Router {
	return &Router{
		handlers:    handlers,
		store:       store,
		redisClient: redisClient,
		gatherer:    gatherer,
		cfg:         cfg,
		logger:      log,
	}
}

// Engine builds the gin engine with all routes and middleware
func (r *Router) Engine() *gin.Engine {
	if !r.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(r.logger))
	engine.Use(corsMiddleware(r.cfg.Server.CORSOrigins))

	// Public endpoints
	engine.GET("/healthz", r.healthCheck)
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	// Transfer API, token protected
	v1 := engine.Group("/api/v1")
	v1.Use(authMiddleware(r.cfg.Auth.Tokens, r.logger))

	exports := v1.Group("/exports")
	exports.POST("", r.handlers.ExportOne)
	exports.POST("/batch", r.handlers.ExportBatch)

	imports := v1.Group("/imports")
	imports.POST("", r.handlers.Import)
	imports.POST("/validate", r.handlers.ValidateImport)
	imports.GET("/recent", r.handlers.RecentImports)

	v1.GET("/stats", r.handlers.Stats)

	return engine
}

// NewServer wraps the engine in an http.Server with the configured timeouts
func (r *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

// healthCheck reports service health. The store must answer; Redis is
// optional and only degrades the status.
func (r *Router) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":  healthStatusHealthy,
		"service": "porter",
		"version": serviceVersion,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	dbConnected := true
	if err := r.store.Ping(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	if r.redisClient != nil {
		redisHealth := gin.H{"connected": true}
		if err := r.redisClient.Ping(ctx).Err(); err != nil {
			redisHealth["connected"] = false
			redisHealth["error"] = err.Error()
			health["status"] = healthStatusDegraded
		}
		health["redis"] = redisHealth
	}

	c.JSON(http.StatusOK, health)
}
