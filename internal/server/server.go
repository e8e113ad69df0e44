package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse-chat/config"
	"pulse-chat/internal/gateway"
	"pulse-chat/internal/handler"
	"pulse-chat/internal/middleware"
	"pulse-chat/internal/redis"
	"pulse-chat/internal/services"
	"pulse-chat/internal/transport/httpdto"
	"pulse-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Messages    *handler.MessageHandler
	Chats       *handler.ChatHandler
	Groups      *handler.GroupHandler
	Attachments *handler.AttachmentHandler
	Users       *handler.UserHandler
	WebSocket   *gateway.WebSocketHandler
	// SocketIO serves the socket.io transport. Optional.
	SocketIO http.Handler
}

// HealthFunc reports whether the backing store is reachable. Nil means
// always healthy.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
	}).Handler(engine)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           corsHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Handler is the fully wrapped http handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter, health HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("database unreachable", "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if handlers.WebSocket != nil {
		s.engine.GET("/ws", handlers.WebSocket.Handle)
	}
	if handlers.SocketIO != nil {
		s.engine.GET("/socket.io/*any", gin.WrapH(handlers.SocketIO))
		s.engine.POST("/socket.io/*any", gin.WrapH(handlers.SocketIO))
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))

	messages := v1.Group("/messages")
	{
		messages.POST("/private", middleware.MessageRateLimitMiddleware(limiter), handlers.Messages.SendPrivate)
		messages.POST("/group", middleware.MessageRateLimitMiddleware(limiter), handlers.Messages.SendGroup)
		messages.POST("/:id/read", handlers.Messages.MarkRead)
		messages.DELETE("/:id", handlers.Messages.Delete)
	}

	chats := v1.Group("/chats")
	{
		chats.GET("", handlers.Chats.List)
		chats.GET("/:chatId/messages", handlers.Chats.History)
		chats.GET("/:chatId/messages/search", handlers.Chats.Search)
		chats.POST("/:chatId/read", handlers.Chats.MarkRead)
		chats.PATCH("/:chatId/settings", handlers.Chats.UpdateSettings)
	}

	groups := v1.Group("/groups")
	{
		groups.POST("", handlers.Groups.Create)
		groups.GET("", handlers.Groups.ListMine)
		groups.GET("/search", handlers.Groups.Search)
		groups.POST("/join/:inviteCode", handlers.Groups.JoinByInvite)
		groups.GET("/:id", handlers.Groups.Get)
		groups.PATCH("/:id", handlers.Groups.Update)
		groups.POST("/:id/join", handlers.Groups.Join)
		groups.POST("/:id/leave", handlers.Groups.Leave)
		groups.POST("/:id/members", handlers.Groups.AddMember)
		groups.DELETE("/:id/members/:userId", handlers.Groups.RemoveMember)
		groups.PATCH("/:id/members/:userId/role", handlers.Groups.UpdateMemberRole)
		groups.POST("/:id/invite-code", handlers.Groups.RegenerateInviteCode)
	}

	v1.POST("/attachments/presign", handlers.Attachments.Presign)
	v1.GET("/users/:id/presence", handlers.Users.Presence)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if s.logger != nil {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
		return err
	case <-quit:
	}

	if s.logger != nil {
		s.logger.Infof("Quitting signal received, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
