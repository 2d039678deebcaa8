package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/KallebyX/caris-chat-service/internal/antivirus"
	"github.com/KallebyX/caris-chat-service/internal/auth"
	"github.com/KallebyX/caris-chat-service/internal/config"
	"github.com/KallebyX/caris-chat-service/internal/db"
	"github.com/KallebyX/caris-chat-service/internal/handlers"
	"github.com/KallebyX/caris-chat-service/internal/middleware"
	"github.com/KallebyX/caris-chat-service/internal/observability"
	"github.com/KallebyX/caris-chat-service/internal/pubsub"
	"github.com/KallebyX/caris-chat-service/internal/rabbitmq"
	"github.com/KallebyX/caris-chat-service/internal/repositories"
	"github.com/KallebyX/caris-chat-service/internal/storage"
	"github.com/KallebyX/caris-chat-service/internal/sweeper"
	"github.com/KallebyX/caris-chat-service/internal/telemetry"
	"github.com/KallebyX/caris-chat-service/internal/ws"
)

const serviceName = "caris-chat-service"

func main() {
	cfg := config.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("service", serviceName).Logger()

	shutdownTracing, err := telemetry.InitTracing(context.Background(), serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Msg("event publisher ready")

	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	redisClient, err := pubsub.NewClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, realtime fan-out is local only")
	}

	hub := ws.NewHub(publisher)
	bridge := pubsub.NewBridge(redisClient, hub, log.Logger)
	bridge.Start(context.Background())
	defer bridge.Close()

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init upload store")
	}

	scanner := antivirus.NewScanner(log.Logger,
		antivirus.NewClamAVEngine(cfg.ClamdAddr),
		antivirus.NewCloudEngine(cfg.CloudScanURL, cfg.CloudScanAPIKey, cfg.CloudScanWait),
		antivirus.NewHeuristicEngine(),
	)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	fileRepo := repositories.NewFileRepo(database)
	receiptRepo := repositories.NewReceiptRepo(database)

	tokens := auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)

	roomHandler := handlers.NewRoomHandler(roomRepo, audit)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, receiptRepo, bridge, audit)
	fileHandler := handlers.NewFileHandler(roomRepo, messageRepo, fileRepo, store, scanner, audit, cfg.MaxUploadBytes)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, tokens)

	sweep := sweeper.New(messageRepo, fileRepo, store, scanner, log.Logger)
	if err := sweep.Start(cfg.ExpirySweepSpec, cfg.RescanSweepSpec); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}
	defer sweep.Stop()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(tokens)

	chat := router.Group("/chat", authMiddleware)
	chat.GET("/rooms", roomHandler.ListRooms)
	chat.POST("/rooms", roomHandler.StartRoom)
	chat.GET("/rooms/:room_id", roomHandler.GetRoom)
	chat.DELETE("/rooms/:room_id", roomHandler.HideRoom)
	chat.GET("/rooms/:room_id/messages", messageHandler.GetMessages)
	chat.POST("/rooms/:room_id/messages", messageHandler.PostMessage)
	chat.PATCH("/rooms/:room_id/messages/:message_id", messageHandler.EditMessage)
	chat.DELETE("/rooms/:room_id/messages/:message_id", messageHandler.DeleteMessage)
	chat.POST("/rooms/:room_id/messages/:message_id/read", messageHandler.MarkRead)
	chat.GET("/rooms/:room_id/messages/:message_id/receipts", messageHandler.GetReceipts)
	chat.POST("/files", fileHandler.Upload)
	chat.GET("/files/:file_id/download", fileHandler.Download)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	log.Info().Str("port", cfg.Port).Msg("chat service listening")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
