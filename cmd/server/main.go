// Package main runs the multi-tenant task management HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/taskhive/backend/config"
	"github.com/taskhive/backend/internal/audit"
	"github.com/taskhive/backend/internal/boards"
	"github.com/taskhive/backend/internal/identity"
	"github.com/taskhive/backend/internal/middleware"
	"github.com/taskhive/backend/internal/models"
	"github.com/taskhive/backend/internal/partition"
	"github.com/taskhive/backend/internal/scheduled"
	"github.com/taskhive/backend/internal/scheduler"
	"github.com/taskhive/backend/internal/tasks"
	"github.com/taskhive/backend/internal/tenants"
	"github.com/taskhive/backend/pkg/database"
	"github.com/taskhive/backend/pkg/metrics"
	"github.com/taskhive/backend/pkg/redis"
	"github.com/taskhive/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	manager := partition.NewManager(pool, logger)

	// Shared store
	tenantRepo := tenants.NewRepository(pool)
	directory := tenants.NewDirectory(tenantRepo, rdb.Client, logger)
	identityRepo := identity.NewRepository(pool)
	jwtService := identity.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authenticator := identity.NewAuthenticator(jwtService, identityRepo)

	// Partitioned stores
	auditRepo := audit.NewRepository(pool)
	boardRepo := boards.NewRepository(pool)
	taskRepo := tasks.NewRepository(pool)
	scheduledRepo := scheduled.NewRepository(pool)

	// Handlers
	tenantHandler := tenants.NewHandler(tenantRepo, directory, manager, identityRepo, logger)
	identityHandler := identity.NewHandler(identityRepo, jwtService, tenantRepo, logger)
	auditHandler := audit.NewHandler(auditRepo)
	boardHandler := boards.NewHandler(boardRepo)
	taskHandler := tasks.NewHandler(taskRepo)
	scheduledHandler := scheduled.NewHandler(scheduledRepo)

	// On-demand engine runs for operators; the worker binary owns the ticker.
	engine := scheduler.NewEngine(directory, scheduler.NewPGStores(pool, manager), cfg.Scheduler.Workers, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Timeout(time.Duration(cfg.Server.RequestTimeout) * time.Second))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public, not tenant-resolved: there is no tenant yet.
	router.POST("/signup", tenantHandler.Signup)
	router.GET("/plans", tenantHandler.ListPlans)

	// Tenant-resolved but unauthenticated.
	authGroup := router.Group("/auth")
	authGroup.Use(middleware.ResolveTenant(directory, manager))
	{
		authGroup.POST("/login", identityHandler.Login)
	}

	// Full pipeline: resolve tenant, authenticate, verify the identity/tenant
	// match, then the partition-scoped API.
	api := router.Group("")
	api.Use(middleware.ResolveTenant(directory, manager))
	api.Use(middleware.Authenticate(authenticator))
	api.Use(middleware.VerifyTenant(auditRepo, logger))
	{
		api.GET("/auth/me", identityHandler.Me)

		api.GET("/users", middleware.RequireRole(models.RoleAdmin), identityHandler.List)
		api.POST("/users", middleware.RequireRole(models.RoleAdmin), middleware.RequireWritable(), identityHandler.CreateMember)
		api.PATCH("/users/:id/restriction", middleware.RequireRole(models.RoleAdmin), middleware.RequireWritable(), identityHandler.SetRestricted)
		api.DELETE("/users/:id", middleware.RequireRole(models.RoleAdmin), middleware.RequireWritable(), identityHandler.DeactivateMember)

		api.GET("/boards", boardHandler.List)
		api.POST("/boards", middleware.RequireWritable(), boardHandler.Create)
		api.GET("/boards/:id", boardHandler.Get)
		api.PUT("/boards/:id", middleware.RequireWritable(), boardHandler.Update)
		api.DELETE("/boards/:id", middleware.RequireWritable(), boardHandler.Delete)

		api.GET("/tasks", taskHandler.List)
		api.POST("/tasks", middleware.RequireWritable(), taskHandler.Create)
		api.GET("/tasks/:id", taskHandler.Get)
		api.PUT("/tasks/:id", middleware.RequireWritable(), taskHandler.Update)
		api.POST("/tasks/:id/assign", middleware.RequireWritable(), taskHandler.Assign)
		api.DELETE("/tasks/:id", middleware.RequireWritable(), taskHandler.Delete)

		api.GET("/scheduled-tasks", scheduledHandler.List)
		api.POST("/scheduled-tasks", middleware.RequireWritable(), scheduledHandler.Create)
		api.GET("/scheduled-tasks/:id", scheduledHandler.Get)
		api.DELETE("/scheduled-tasks/:id", middleware.RequireWritable(), scheduledHandler.Delete)

		api.GET("/audit-logs", middleware.RequireRole(models.RoleAdmin), auditHandler.List)

		api.POST("/tenant/domains", middleware.RequireRole(models.RoleOwner), middleware.RequireWritable(), tenantHandler.AddDomain)
		api.POST("/tenant/deactivate", middleware.RequireRole(models.RoleOwner), middleware.RequireWritable(), tenantHandler.Deactivate)

		api.POST("/admin/scheduler/run", middleware.RequireRole(models.RoleAdmin), middleware.RequireWritable(), func(c *gin.Context) {
			summary, err := engine.RunOnce(c.Request.Context())
			if err != nil {
				response.Internal(c, "engine run failed")
				return
			}
			response.OK(c, summary)
		})
	}

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
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
