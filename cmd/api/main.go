package main

import (
	"context"
	"log"
	"time"

	"pulse-chat/config"
	"pulse-chat/internal/gateway"
	"pulse-chat/internal/handler"
	"pulse-chat/internal/proxy"
	pulseredis "pulse-chat/internal/redis"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/repository/memory"
	"pulse-chat/internal/server"
	"pulse-chat/internal/services"
	"pulse-chat/internal/storage"
	"pulse-chat/pkg/database"
	"pulse-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx := context.Background()

	// Store
	var (
		store  repository.Store
		health server.HealthFunc
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		appLogger.Logger.Warn("using the in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
		db, err := database.Connect(cfg)
		if err != nil {
			appLogger.Logger.Fatal("database connection failed", zap.Error(err))
		}
		defer database.Close(db)
		if cfg.DBAutoMigrate {
			if err := repository.AutoMigrate(db); err != nil {
				appLogger.Logger.Fatal("auto migrate failed", zap.Error(err))
			}
		}
		store = repository.NewGormStore(db)
		health = func(ctx context.Context) error { return database.HealthCheck(ctx, db) }
	}

	// Redis: presence and REST message throttling. Both are optional.
	var (
		presence *pulseredis.PresenceStore
		limiter  *pulseredis.RateLimiter
	)
	if cfg.RedisEnabled {
		client, err := pulseredis.Connect(ctx, pulseredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			appLogger.Logger.Warn("redis unavailable, presence falls back to the database", zap.Error(err))
		} else {
			defer func(c *goredis.Client) { _ = c.Close() }(client)
			presence = pulseredis.NewPresenceStore(client, pulseredis.NewPublisher(client), 0)
			limiter = pulseredis.NewRateLimiter(client, pulseredis.RateLimitConfig{
				MessageLimit:  cfg.MessageRateLimit,
				MessageWindow: time.Minute,
			})
		}
	}

	// Services
	access := proxy.NewAccessControl()
	authService := services.NewAuthService(store.Users(), cfg)
	userService := services.NewUserService(store.Users(), presence)
	conversationService := services.NewConversationService(store, access)
	messageService := services.NewMessageService(store, access)
	groupService := services.NewGroupService(store, access, cfg.InviteBaseURL)

	// Realtime gateway
	gw := gateway.New(gateway.Deps{
		Auth:           authService,
		Users:          userService,
		Conversations:  conversationService,
		Messages:       messageService,
		Groups:         groupService,
		MessageLimiter: limiter,
	}, gateway.Options{
		EventsPerSecond:       cfg.WSEventsPerSecond,
		EventBurst:            cfg.WSEventBurst,
		MaxConnectionsPerUser: cfg.WSMaxConnectionsPerUser,
		PresenceRefresh:       cfg.WSPresenceRefresh,
	}, appLogger)

	presenceCtx, stopPresence := context.WithCancel(ctx)
	defer stopPresence()
	go gw.KeepPresence(presenceCtx)

	sio := gateway.NewSocketIOServer(gw)
	go func() {
		if err := sio.Serve(); err != nil {
			appLogger.Logger.Error("socket.io server stopped", zap.Error(err))
		}
	}()
	defer sio.Close()

	// Attachments
	var presigner handler.Presigner
	if cfg.S3Enabled() {
		s3Client, err := storage.NewClient(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			appLogger.Logger.Warn("attachment storage disabled", zap.Error(err))
		} else {
			presigner = s3Client
		}
	}

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Messages:    handler.NewMessageHandler(messageService, gw),
		Chats:       handler.NewChatHandler(conversationService, messageService, gw),
		Groups:      handler.NewGroupHandler(groupService, gw),
		Attachments: handler.NewAttachmentHandler(presigner),
		Users:       handler.NewUserHandler(userService),
		WebSocket:   gateway.NewWebSocketHandler(gw),
		SocketIO:    sio,
	}, authService, limiter, health)

	if err := srv.Start(); err != nil {
		log.Printf("server exited: %v", err)
	}
}
