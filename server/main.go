package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotbook/api/routes"
	"slotbook/internal/notifications"
	"slotbook/internal/reservations"
	"slotbook/internal/shared/config"
	"slotbook/internal/shared/database"
	"slotbook/internal/shared/middleware"
	"slotbook/pkg/cache"
	"slotbook/pkg/logger"
	"slotbook/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	appLogger := logger.NewWithLevel(cfg.LogLevel)
	logger.SetDefault(appLogger)

	if envErr != nil {
		appLogger.Info("No .env file found, using system environment variables")
	} else {
		appLogger.Info("Loaded .env file")
	}

	if err := cfg.Validate(); err != nil {
		appLogger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()

	var store reservations.Store
	if cfg.Store.Driver == "memory" {
		store = reservations.NewMemoryStore()
		appLogger.Warn("using in-memory store, data is lost on restart")
	} else {
		store = reservations.NewGormStore(db.PostgreSQL, cfg.Database.LockTimeout)
	}

	notificationService, err := notifications.NewService(cfg.Notifications, db.Redis, m, appLogger)
	if err != nil {
		appLogger.Error("failed to initialize notification service", slog.Any("error", err))
		os.Exit(1)
	}

	opts := []reservations.Option{
		reservations.WithNotifier(notificationService.Emitter),
		reservations.WithMetrics(m),
		reservations.WithLogger(appLogger),
	}
	if db.Redis != nil {
		statusCache := reservations.NewRedisStatusCache(cache.NewService(db.Redis), cfg.Redis.StatusCacheTTL, appLogger)
		opts = append(opts, reservations.WithStatusCache(statusCache))
	}
	engine := reservations.NewEngine(store, reservations.Config{
		MaxAttempts:     cfg.Reservation.MaxAttempts,
		BaseBackoff:     cfg.Reservation.BaseBackoff,
		MaxBackoff:      cfg.Reservation.MaxBackoff,
		TxTimeout:       cfg.Reservation.TxTimeout,
		WaitlistEnabled: cfg.Reservation.WaitlistEnabled,
		MaxQuantity:     cfg.Reservation.MaxQuantity,
	}, opts...)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	notificationService.Start(bgCtx)

	sweeper := reservations.NewSweeper(engine.Waitlist(), &reservations.SweeperConfig{
		Interval:  cfg.Reservation.SweepInterval,
		BatchSize: cfg.Reservation.SweepBatchSize,
	}, appLogger)
	sweeper.Start(bgCtx)

	var subscriber notifications.Subscriber
	if notificationService.Hub != nil {
		subscriber = notificationService.Hub
	}

	router := setupRouter(cfg, db, engine, subscriber, m, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.String("store", cfg.Store.Driver),
			slog.String("notifications", cfg.Notifications.Transport),
			slog.Bool("redis", db.Redis != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	sweeper.Stop()
	if err := notificationService.Stop(); err != nil {
		appLogger.Error("Error stopping notification service", slog.Any("error", err))
	}
	bgCancel()

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, engine *reservations.Engine,
	subscriber notifications.Subscriber, m *metrics.Metrics, appLogger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(appLogger), gin.Recovery())
	if cfg.Metrics.Enabled {
		router.Use(metrics.GinMiddleware(m))
	}

	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.NewRouter(cfg, db, engine, subscriber, appLogger).SetupRoutes(router)
	return router
}
