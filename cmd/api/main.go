package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/yourusername/exam-api/internal/config"
	"github.com/yourusername/exam-api/internal/domain/repository"
	"github.com/yourusername/exam-api/internal/handler"
	"github.com/yourusername/exam-api/internal/middleware"
	memoryRepo "github.com/yourusername/exam-api/internal/repository/memory"
	pgRepo "github.com/yourusername/exam-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/exam-api/internal/repository/redis"
	"github.com/yourusername/exam-api/internal/service"
	ws "github.com/yourusername/exam-api/internal/websocket"
	"github.com/yourusername/exam-api/pkg/auth"
	"github.com/yourusername/exam-api/pkg/database"
	"github.com/yourusername/exam-api/pkg/logger"
	"github.com/yourusername/exam-api/pkg/monitoring"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	appLogger, err := logger.New(cfg.Log, !cfg.Server.IsRelease())
	if err != nil {
		log.Printf("Failed to init logger: %v", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("configuration loaded", append([]zap.Field{zap.String("path", configPath)}, cfg.LogFields()...)...)

	gin.SetMode(cfg.Server.Mode)
	monitoring.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.NewPostgresDB(cfg.Database, !cfg.Server.IsRelease())
	if err != nil {
		appLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.MigrateDB(db, cfg.Database.MigrationsPath, appLogger); err != nil {
		appLogger.Fatal("failed to migrate database", zap.Error(err))
	}
	sqlDB, err := database.GetSQLDB(db)
	if err != nil {
		appLogger.Fatal("failed to get sql.DB", zap.Error(err))
	}

	// Redis is optional: without it the instance runs alone
	var (
		redisClient redis.UniversalClient
		cache       repository.CacheRepository
		locker      repository.Locker
		rateCounter middleware.RateCounter
		pubSub      *ws.RedisPubSub
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			appLogger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
		if err != nil {
			appLogger.Fatal("failed to initialize CacheRepo", zap.Error(err))
		}
		cache = cacheRepo
		locker = redisRepo.NewLocker(redisClient, cfg.Ranking.LockWait, cfg.Ranking.LockRetry, appLogger)
		rateCounter = middleware.NewRedisRateCounter(redisClient)
		pubSub, err = ws.NewRedisPubSub(redisClient, appLogger)
		if err != nil {
			appLogger.Fatal("failed to initialize Redis PubSub", zap.Error(err))
		}
		appLogger.Info("connected to Redis", zap.String("mode", cfg.Redis.Mode))
	} else {
		locker = memoryRepo.NewLocker(cfg.Ranking.LockWait)
		appLogger.Warn("Redis disabled: in-process locks, no cache, no rate limiting, no websocket clustering")
	}

	// Repositories
	testRepo := pgRepo.NewTestRepo(db)
	resultRepo := pgRepo.NewResultRepo(db, appLogger)
	centerRepo := pgRepo.NewCenterRepo(db)

	// Email
	var emailService service.EmailService = service.NewNoopEmailService(appLogger)
	if cfg.Email.Provider == "resend" {
		resend, err := service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From)
		if err != nil {
			appLogger.Fatal("failed to initialize email service", zap.Error(err))
		}
		emailService = resend
	}

	// WebSocket
	wsHub := ws.NewHub(appLogger)
	var clusterHub *ws.ClusterHub
	if pubSub != nil {
		clusterHub = ws.NewClusterHub(wsHub, pubSub, ws.DefaultClusterChannel, appLogger)
		wsHub.AttachCluster(clusterHub)
		if err := clusterHub.Start(); err != nil {
			appLogger.Fatal("failed to start websocket cluster relay", zap.Error(err))
		}
	}
	wsManager := ws.NewManager(wsHub, appLogger)

	// Services
	resultService := service.NewResultService(service.ResultServiceDeps{
		TestRepo:     testRepo,
		ResultRepo:   resultRepo,
		Centers:      centerRepo,
		Cache:        cache,
		Locker:       locker,
		Notifier:     wsManager,
		Email:        emailService,
		Ranking:      cfg.Ranking,
		TestCacheTTL: cfg.Cache.TestTTL,
		Logger:       appLogger,
	})
	scheduler := service.NewRankingScheduler(testRepo, resultService, cfg.Ranking, appLogger)

	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, 0)
	if err != nil {
		appLogger.Fatal("failed to initialize JWTService", zap.Error(err))
	}

	// Handlers
	resultHandler := handler.NewResultHandler(resultService, scheduler, appLogger)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, jwtService, cfg.CORS.AllowedOrigins, appLogger)
	checks := map[string]handler.HealthCheck{"database": sqlDB.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	healthHandler := handler.NewHealthHandler(checks)

	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(rateCounter, appLogger)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(appLogger), monitoring.MetricsMiddleware())

	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		appLogger.Warn("failed to set trusted proxies", zap.Error(err))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/metrics", monitoring.PrometheusHandler())

	api := router.Group("/api")
	{
		api.POST("/ws/ticket", authMiddleware.RequireAuth(), wsHandler.IssueTicket)

		tests := api.Group("/tests/:id")
		tests.Use(middleware.ExtractUintParam("id", "testID"), authMiddleware.RequireAuth())
		{
			tests.GET("/results", resultHandler.GetTestResults)
			tests.GET("/my-result", resultHandler.GetMyResult)
			tests.POST("/submit",
				rateLimiter.LimitByStudent(middleware.SubmitRateLimitConfig(cfg.RateLimit.SubmitLimit, cfg.RateLimit.SubmitWindow)),
				resultHandler.SubmitAttempt)

			admin := tests.Group("")
			admin.Use(authMiddleware.AdminOnly())
			{
				admin.POST("/auto-submit", resultHandler.AutoSubmit)
				admin.POST("/rankings", resultHandler.RecomputeRanks)
				admin.POST("/ranking-schedule", resultHandler.ScheduleRanking)
				admin.DELETE("/ranking-schedule", resultHandler.CancelRanking)
				admin.GET("/results/export", resultHandler.ExportResults)
			}
		}
	}

	router.GET("/ws", wsHandler.HandleConnection)

	// Rank tests that ended while the service was down
	go func() {
		if _, err := scheduler.RescheduleOnStartup(ctx); err != nil {
			appLogger.Error("failed to reschedule rankings", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", zap.Error(err))
	}

	if clusterHub != nil {
		clusterHub.Stop()
	}
	wsHub.Close()
	if pubSub != nil {
		if err := pubSub.Close(); err != nil {
			appLogger.Warn("error closing PubSub provider", zap.Error(err))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if err := sqlDB.Close(); err != nil {
		appLogger.Warn("error closing database", zap.Error(err))
	}

	appLogger.Info("server exited properly")
}
