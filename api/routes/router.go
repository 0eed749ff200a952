package routes

import (
	"context"
	"net/http"
	"time"

	"slotbook/internal/notifications"
	"slotbook/internal/reservations"
	"slotbook/internal/shared/config"
	"slotbook/internal/shared/middleware"
	"slotbook/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Router holds all route dependencies
type Router struct {
	config     *config.Config
	db         HealthChecker
	engine     *reservations.Engine
	subscriber notifications.Subscriber
	logger     *logger.Logger
}

// NewRouter creates a new router instance. subscriber may be nil when no
// live notification channel is available.
func NewRouter(cfg *config.Config, db HealthChecker, engine *reservations.Engine, subscriber notifications.Subscriber, log *logger.Logger) *Router {
	return &Router{
		config:     cfg,
		db:         db,
		engine:     engine,
		subscriber: subscriber,
		logger:     log,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	if r.config.Metrics.Enabled {
		engine.GET(r.config.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	auth := middleware.JWTAuth(r.config.JWT.Secret)
	api := engine.Group(r.config.GetAPIBasePath())
	{
		reservations.SetupRoutes(api, reservations.NewController(r.engine, r.logger), auth)

		if r.subscriber != nil {
			notifications.SetupRoutes(api, notifications.NewController(r.subscriber, 0, r.logger), auth)
		}
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		err := r.engine.Ping(ctx)
		if err == nil && r.db != nil {
			err = r.db.HealthCheck(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "slotbook",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "slotbook",
			"store":     r.config.Store.Driver,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})
}
