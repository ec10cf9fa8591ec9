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

	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/realtime"
	"whiteboard-backend/internal/store"
)

// Server Fiber server wrapper
type Server struct {
	app             *fiber.App
	cfg             *config.Config
	db              *gorm.DB
	hub             *realtime.Hub
	engine          *realtime.Engine
	boardHandler    *handler.BoardHandler
	drawingHandler  *handler.DrawingHandler
	boardWSHandler  *handler.BoardWSHandler
	healthHandler   *handler.HealthHandler
	presenceManager *presence.Manager
}

// New creates a server instance
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Collaborative Whiteboard Backend",
		ServerHeader:          "Fiber",
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // incompatible with WebSocket
		DisableStartupMessage: false,
	})

	// Redis presence is optional
	var presenceManager *presence.Manager
	if cfg.Redis.Addr != "" {
		pm, err := presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis presence unavailable: %v (presence disabled)", err)
		} else {
			presenceManager = pm
			log.Printf("✅ Redis presence enabled (%s)", cfg.Redis.Addr)
		}
	} else {
		log.Println("ℹ️ Redis not configured (presence disabled)")
	}

	hub := realtime.NewHub()
	drawingStore := store.NewGormDrawingStore(db)
	engine := realtime.NewEngine(drawingStore, hub, cfg.Realtime.QueueBufferSize, cfg.Realtime.OpTimeout)

	return &Server{
		app:             app,
		cfg:             cfg,
		db:              db,
		hub:             hub,
		engine:          engine,
		boardHandler:    handler.NewBoardHandler(db, engine, hub, presenceManager),
		drawingHandler:  handler.NewDrawingHandler(db, engine),
		boardWSHandler:  handler.NewBoardWSHandler(hub, engine, presenceManager),
		healthHandler:   handler.NewHealthHandler(db, presenceManager),
		presenceManager: presenceManager,
	}
}

// SetupMiddleware configures middleware
func (s *Server) SetupMiddleware() {
	// panic recovery
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// request logging
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORS.AllowOrigins,
		AllowHeaders: s.cfg.CORS.AllowHeaders,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
}

// SetupRoutes configures routes
func (s *Server) SetupRoutes() {
	// health checks
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// rate limiter for board mutations
	writeLimiter := limiter.New(limiter.Config{
		Max:        100,
		Expiration: 15 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// board CRUD
	s.app.Get("/boards", s.boardHandler.GetBoards)
	s.app.Post("/boards", writeLimiter, s.boardHandler.CreateBoard)
	s.app.Put("/boards/:id", writeLimiter, s.boardHandler.UpdateBoard)
	s.app.Delete("/boards/:id", writeLimiter, s.boardHandler.DeleteBoard)
	s.app.Get("/boards/:id/presence", s.boardHandler.GetBoardPresence)

	// replay
	s.app.Get("/drawings/:boardId", s.drawingHandler.GetDrawings)

	// WebSocket upgrade check middleware
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// realtime board endpoint
	s.app.Get("/ws/board", websocket.New(s.boardWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Whiteboard backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/board", s.cfg.Server.Port)

	err := s.app.Listen(s.cfg.Server.Port)

	// drain per-board queues after the listener stops feeding them
	s.engine.Close()
	if s.presenceManager != nil {
		s.presenceManager.Close()
	}

	return err
}

// Shutdown stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
