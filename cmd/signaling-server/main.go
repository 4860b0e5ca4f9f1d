package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"voicelink-backend/internal/config"
	"voicelink-backend/internal/database"
	callHandler "voicelink-backend/internal/handler/http/call"
	notificationHandler "voicelink-backend/internal/handler/http/notification"
	webrtcHandler "voicelink-backend/internal/handler/http/webrtc"
	wsHandler "voicelink-backend/internal/handler/ws"
	"voicelink-backend/internal/middleware"
	pgrepo "voicelink-backend/internal/repository/postgres"
	redisrepo "voicelink-backend/internal/repository/redis"
	"voicelink-backend/internal/scheduler"
	callService "voicelink-backend/internal/service/call"
	notifyService "voicelink-backend/internal/service/notify"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/jwt"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWT.Secret) < 32 {
		logger.Fatal("JWT_SECRET must be at least 32 characters")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTTL)

	ctx := context.Background()

	// Postgres
	pg, err := database.NewPostgres(ctx, cfg.PostgresURL())
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pg.Close()
	logger.Info("Connected to Postgres")

	// Redis
	redisClient, err := database.NewRedisClient(ctx, &database.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	// Repositories
	callRepo := pgrepo.NewCallRepository(pg.Pool)
	signalRepo := pgrepo.NewCallSignalRepository(pg.Pool)
	messageRepo := pgrepo.NewMessageRepository(pg.Pool)
	groupRepo := pgrepo.NewGroupRepository(pg.Pool)
	notificationRepo := pgrepo.NewNotificationRepository(pg.Pool)
	followerRepo := pgrepo.NewFollowerRepository(pg.Pool)
	presenceRepo := redisrepo.NewPresenceRepository(redisClient)
	roomPublisher := redisrepo.NewRoomPublisher(redisClient)

	// Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// Hub and services
	hub := wsHandler.NewHub(wsHandler.NewRegistry(), roomPublisher, appMetrics)
	notifySvc := notifyService.NewService(notificationRepo, hub, appMetrics)
	callSvc := callService.NewService(callRepo, signalRepo, hub, notifySvc, appMetrics)

	// WebSocket routers
	signalingRouter := wsHandler.NewSignalingRouter(hub, callSvc, appMetrics)
	conversationRelay := wsHandler.NewConversationRelay(hub, messageRepo, groupRepo, appMetrics)
	presenceChannels := wsHandler.NewPresenceChannels(hub, presenceRepo, followerRepo, appMetrics)
	wsEndpoints := wsHandler.NewEndpoints(hub, signalingRouter, conversationRelay, presenceChannels,
		groupRepo, cfg.Server.AllowedOrigins, appMetrics)

	// HTTP handlers
	callHdlr := callHandler.NewHandler(callSvc)
	notificationHdlr := notificationHandler.NewHandler(notifySvc)
	webrtcHdlr := webrtcHandler.NewHandler(cfg.WebRTC)

	// Missed-call sweeper
	sweeper := scheduler.NewSweeper(callSvc, cfg.Call.RingTimeout, cfg.Call.SweepInterval)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start call sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.Prometheus(appMetrics))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	auth := middleware.Auth(jwtManager)

	v1 := router.Group("/v1")
	v1.Use(auth)
	{
		v1.POST("/calls", callHdlr.Initiate)
		v1.GET("/calls/history", callHdlr.History)
		v1.GET("/calls/active", callHdlr.Active)
		v1.GET("/calls/missed", callHdlr.Missed)
		v1.GET("/calls/:id", callHdlr.GetCall)
		v1.POST("/calls/:id/accept", callHdlr.Accept)
		v1.POST("/calls/:id/reject", callHdlr.Reject)
		v1.POST("/calls/:id/cancel", callHdlr.Cancel)
		v1.POST("/calls/:id/end", callHdlr.End)

		v1.GET("/notifications", notificationHdlr.List)
		v1.GET("/notifications/unread-count", notificationHdlr.UnreadCount)
		v1.POST("/notifications/:id/read", notificationHdlr.MarkRead)
		v1.POST("/notifications/read-all", notificationHdlr.MarkAllRead)

		v1.GET("/webrtc/config", webrtcHdlr.GetConfig)
	}

	wsGroup := router.Group("/ws")
	wsGroup.Use(auth)
	{
		wsGroup.GET("/call/:room", wsEndpoints.ServeCall)
		wsGroup.GET("/presence", wsEndpoints.ServePresence)
		wsGroup.GET("/messages/:peer", wsEndpoints.ServeDirectMessages)
		wsGroup.GET("/group/:group", wsEndpoints.ServeGroupMessages)
		wsGroup.GET("/notifications", wsEndpoints.ServeNotifications)
		wsGroup.GET("/status", wsEndpoints.ServeStatus)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("Signaling server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
