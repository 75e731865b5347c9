package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"fiapstore/internal/config"
	"fiapstore/internal/database"
	"fiapstore/internal/handlers"
	"fiapstore/internal/jobs"
	"fiapstore/internal/logging"
	"fiapstore/internal/middleware"
	"fiapstore/internal/services"
)

func main() {
	log.Println("🚀 Starting FIAP point store...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init(cfg.Environment)
	log.Printf("📋 Configuration loaded (Port: %s, Environment: %s)", cfg.Port, cfg.Environment)

	log.Println("🔗 Connecting to MongoDB...")
	mongoDB, err := database.NewMongoDB(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	log.Printf("✅ MongoDB connected (database: %s)", mongoDB.Name())

	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	// Point events are optional: without Redis, writes are simply not announced
	var redisService *services.RedisService
	var events services.PointPublisher
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (point events disabled)", err)
		} else {
			events = services.NewRedisPointEvents(redisService.Client())
			log.Printf("📣 Point events enabled on %s*", services.PointChannelPrefix)
		}
	}

	pointStore := services.NewPointStore(mongoDB, events, metrics)
	trapStore := services.NewTrapStore(mongoDB, metrics)

	// Background jobs
	jobScheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	healthChecker := jobs.NewBackendHealthChecker(mongoDB, metrics, cfg.HealthCheckInterval)
	if err := jobScheduler.Register("backend_health", healthChecker); err != nil {
		log.Fatalf("❌ Failed to register backend health job: %v", err)
	}
	jobScheduler.Start()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "FIAP point store",
		ReadTimeout:  cfg.RequestTimeout + 5*time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    32 * 1024 * 1024, // chunk payloads carry many samples
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prom := fiberprometheus.New("fiapstore")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept",
		AllowCredentials: false,
	}))
	log.Printf("🔒 [SECURITY] CORS allowed origins: %s", cfg.AllowedOrigins)

	rateLimitConfig := middleware.NewRateLimitConfig(cfg.RateLimitMax, cfg.Environment == "development")
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Global=%d/min, Write=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.WriteMax,
	)
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))
	app.Use("/api", middleware.RequestTimeout(cfg.RequestTimeout))

	routes := &handlers.Routes{
		Points:       handlers.NewPointHandler(pointStore),
		Query:        handlers.NewQueryHandler(pointStore, cfg.DefaultPageSize, cfg.MaxPageSize),
		Traps:        handlers.NewTrapHandler(trapStore),
		Health:       handlers.NewHealthHandler(mongoDB),
		WriteLimiter: middleware.WriteRateLimiter(rateLimitConfig),
	}
	routes.Register(app)

	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("🕐 Background jobs: backend health + point indexes (every %v)", cfg.HealthCheckInterval)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := jobScheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.Printf("⚠️ Error closing Redis: %v", err)
		}
	}
	if err := mongoDB.Close(ctx); err != nil {
		log.Printf("⚠️ Error closing MongoDB: %v", err)
	}
	log.Println("✅ Server stopped")
}
