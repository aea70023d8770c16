package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/store"
)

// Server wraps the Fiber app and the whiteboard components.
type Server struct {
	app            *fiber.App
	cfg            *config.Config
	db             *gorm.DB
	hub            *handler.BoardHub
	boardWSHandler *handler.BoardWSHandler
	sessionHandler *handler.SessionHandler
	healthHandler  *handler.HealthHandler
}

// New creates a server instance. redisClient may be nil; the recent-action
// cache is then disabled.
func New(cfg *config.Config, db *gorm.DB, redisClient *cache.RedisClient) *Server {
	app := fiber.New(fiber.Config{
		AppName:        "Collaborative Whiteboard",
		ServerHeader:   "Fiber",
		StrictRouting:  true,
		CaseSensitive:  true,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		Prefork:        false, // incompatible with WebSocket
		ReadBufferSize: 16384,
		BodyLimit:      1 * 1024 * 1024,
	})

	boardStore := store.New(db)

	// A nil *RedisClient must stay a nil interface in the handlers.
	var actionCache handler.ActionCache
	var recentCache handler.RecentActionCache
	var cachePinger handler.ActionPinger
	if redisClient != nil {
		actionCache = redisClient
		recentCache = redisClient
		cachePinger = redisClient
	}

	hub := handler.NewBoardHub(boardStore, actionCache, cfg)

	return &Server{
		app:            app,
		cfg:            cfg,
		db:             db,
		hub:            hub,
		boardWSHandler: handler.NewBoardWSHandler(hub),
		sessionHandler: handler.NewSessionHandler(boardStore, recentCache),
		healthHandler:  handler.NewHealthHandler(db, cachePinger, hub),
	}
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Canvas client assets
	s.app.Static("/", s.cfg.Server.StaticDir)
}

// SetupRoutes installs the HTTP and WebSocket routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Session creation is the only write on the HTTP surface; keep it from
	// being hammered.
	createLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	api := s.app.Group("/api/sessions")
	api.Post("", createLimiter, s.sessionHandler.CreateSession)
	api.Get("", s.sessionHandler.GetSessions)
	api.Get("/:id", s.sessionHandler.LoadSession)
	api.Post("/:id/actions", s.sessionHandler.SaveAction)
	api.Get("/:id/actions/recent", s.sessionHandler.RecentActions)

	// WebSocket upgrade check
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Board socket: the user identity travels as a query parameter and the
	// session is chosen by a JoinSession message after connect.
	s.app.Get("/ws/board", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		userID := c.Query("userId", "anonymous")
		c.Locals("userId", userID)

		return c.Next()
	}, websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Collaborative Whiteboard starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
