// Package main runs the auction registration and payment HTTP server with
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/appraisells/backend/config"
	"github.com/appraisells/backend/internal/middleware"
	"github.com/appraisells/backend/internal/payments"
	"github.com/appraisells/backend/internal/pigateway"
	"github.com/appraisells/backend/internal/registrations"
	"github.com/appraisells/backend/internal/status"
	"github.com/appraisells/backend/internal/store"
	"github.com/appraisells/backend/pkg/database"
	"github.com/appraisells/backend/pkg/redis"
	"github.com/appraisells/backend/pkg/response"
)

const statusCacheTTL = 30 * time.Second

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var st store.Store
	if dsn := cfg.Database.DSN(); dsn != "" {
		pool, err := database.NewPostgresPool(ctx, dsn, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		st = store.NewPostgres(pool)
	} else {
		logger.Warn("no DATABASE_URL configured, using in-memory store")
		st = store.NewMemory()
	}

	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	gateway := pigateway.New(pigateway.Config{
		APIKey:      cfg.Pi.APIKey,
		BaseURL:     cfg.Pi.APIURL,
		SandboxMode: cfg.Pi.SandboxMode,
		Timeout:     time.Duration(cfg.Pi.TimeoutSec) * time.Second,
	}, logger)
	if cfg.Pi.APIKey == "" {
		logger.Warn("no PI_API_KEY configured, gateway runs in local sandbox mode")
	}

	statusCache := registrations.NewStatusCache(rdb, statusCacheTTL, logger)
	registrationHandler := registrations.NewHandler(st, gateway, statusCache, logger)
	paymentHandler := payments.NewHandler(st, gateway, statusCache, logger)
	statusHandler := status.NewHandler(st, rdb, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/api/status", statusHandler.GetStatus)

	router.POST("/register-profile", registrationHandler.RegisterProfile)
	router.POST("/register-user", registrationHandler.RegisterUser)
	router.GET("/registration-status/:email", registrationHandler.GetStatus)

	// Callback checkpoints driven by the Pi browser SDK.
	router.POST("/approve-payment", paymentHandler.ApprovePayment)
	router.POST("/complete-payment", paymentHandler.CompletePayment)

	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "not found") })

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	// Let in-flight fire-and-forget persistence land before exit.
	paymentHandler.Drain()
	logger.Info("server stopped")
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowedOrigins == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
	}
	return cors.New(cfg)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
