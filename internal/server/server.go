package server

import (
	"github.com/AnamariaDum/BikeRecorder/internal/auth"
	"github.com/AnamariaDum/BikeRecorder/internal/config"
	"github.com/AnamariaDum/BikeRecorder/internal/devices"
	"github.com/AnamariaDum/BikeRecorder/internal/stream"
	"github.com/AnamariaDum/BikeRecorder/internal/trips"
	"github.com/AnamariaDum/BikeRecorder/internal/uploads"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{BodyLimit: 1 << 30})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	authSvc := auth.NewService(s.Cfg.JWTSecret, s.DB)
	tripSvc := trips.NewService(s.DB, s.Stream)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	auth.RegisterProfileRoutes(s.App, authSvc, jwtMiddleware)
	devices.RegisterRoutes(s.App.Group("/devices"), devices.NewService(s.DB), jwtMiddleware)
	trips.RegisterRoutes(s.App.Group("/trips"), tripSvc, jwtMiddleware)
	trips.RegisterSegmentRoutes(s.App.Group("/segments"), tripSvc, jwtMiddleware)
	uploads.RegisterRoutes(s.App.Group("/uploads"), uploads.NewService(s.DB, s.Redis, s.Cfg.StorageDir), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
