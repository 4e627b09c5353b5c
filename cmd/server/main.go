package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/underplayed/api/internal/blend"
	"github.com/underplayed/api/internal/client"
	"github.com/underplayed/api/internal/config"
	"github.com/underplayed/api/internal/handler"
	"github.com/underplayed/api/internal/middleware"
	"github.com/underplayed/api/internal/service"
	"github.com/underplayed/api/internal/store"
	"github.com/underplayed/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize external clients
	spotifyClient := client.NewSpotifyClient(&cfg.Spotify, &cfg.Playlist)
	lastfmClient := client.NewLastfmClient(&cfg.Lastfm)

	if !spotifyClient.IsConfigured() {
		log.Println("Warning: Spotify credentials not configured, login will fail")
	}
	if !lastfmClient.IsConfigured() {
		log.Println("Warning: Last.fm API key not configured, blends will find no play counts")
	}

	// Initialize store and services
	statusStore := store.NewStatusStore(redisClient)
	retention := time.Duration(cfg.Jobs.RetentionMinutes) * time.Minute
	blendService := service.NewBlendService(statusStore, asynqClient, retention)

	// Initialize handlers
	sessionTTL := time.Duration(cfg.Session.Expiration) * time.Hour
	blendHandler := handler.NewBlendHandler(blendService, validate)
	authHandler := handler.NewAuthHandler(spotifyClient, statusStore, cfg.Session.Secret, sessionTTL)

	// Initialize middleware
	sessionMiddleware := middleware.NewSessionMiddleware(statusStore, cfg.Session.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":   redisClient.Ping(c.Context()).Err() == nil,
				"spotify": spotifyClient.IsConfigured(),
				"lastfm":  lastfmClient.IsConfigured(),
			},
		})
	})

	// Auth routes
	app.Get("/auth/login", authHandler.Login)
	app.Get("/auth/callback", authHandler.Callback)
	app.Post("/auth/logout", authHandler.Logout)

	// API routes
	api := app.Group("/api", sessionMiddleware.Authenticate())

	blendRoutes := api.Group("/blend")
	blendRoutes.Post("/start", rateLimiter.BlendLimit(cfg.RateLimit.BlendPerHour), blendHandler.Start)
	blendRoutes.Get("/status/:processId", blendHandler.Status)
	blendRoutes.Delete("/status/:processId", blendHandler.Dismiss)

	// Start Asynq worker server
	go startWorkerServer(cfg, statusStore, blendService, spotifyClient, lastfmClient)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	statusStore *store.StatusStore,
	blendService *service.BlendService,
	spotifyClient *client.SpotifyClient,
	lastfmClient *client.LastfmClient,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"blend": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	blendWorker := worker.NewBlendWorker(
		blendService,
		statusStore,
		spotifyClient,
		lastfmClient,
		spotifyClient,
		blend.NewEngine(nil),
		cfg.Playlist.NamePrefix,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeBlend, blendWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
