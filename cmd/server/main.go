package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptbin/cryptbin/internal/blob"
	"github.com/cryptbin/cryptbin/internal/chunk"
	"github.com/cryptbin/cryptbin/internal/config"
	"github.com/cryptbin/cryptbin/internal/handler"
	"github.com/cryptbin/cryptbin/internal/repository"
	"github.com/cryptbin/cryptbin/internal/service"
	"github.com/cryptbin/cryptbin/pkg/database"
	"github.com/cryptbin/cryptbin/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// Initialize structured logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	logger.Init(logger.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: os.Stdout,
	})

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Configuration error")
	}

	logger.Info().
		Str("bind_address", cfg.Server.BindAddress).
		Str("port", cfg.Server.Port).
		Str("log_level", logLevel).
		Msg("Starting CryptBin server")

	// Initialize database
	db, err := database.Initialize(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("Database initialized")

	// Initialize schema
	if err := database.InitSchema(db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize schema")
	}
	logger.Info().Msg("Database schema initialized")

	// Initialize storage, repositories and services
	blobs := blob.NewStore(cfg.Storage.BlobPath)
	reassembler := chunk.NewReassembler(cfg.Storage.ChunkPath)
	fileRepo := repository.NewFileRepository(db)
	fileSvc := service.NewFileService(fileRepo, blobs)
	streamSvc := service.NewStreamService(fileRepo, blobs)

	// Initialize handlers
	fileHandler := handler.NewFileHandler(fileSvc, reassembler)
	streamHandler := handler.NewStreamHandler(streamSvc)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:               cfg.Server.MaxUploadBytes,
		DisableKeepalive:        false,
		ReadTimeout:             10 * time.Second,
		WriteTimeout:            30 * time.Second,
		IdleTimeout:             60 * time.Second,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          cfg.Server.TrustedProxies,
		EnableIPValidation:      true,
	})

	logger.Info().
		Strs("trusted_proxies", cfg.Server.TrustedProxies).
		Msg("Trusted proxy configuration loaded")

	// Middleware
	app.Use(recover.New())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
	app.Use(handler.SecurityHeadersMiddleware())
	app.Use(handler.RequestIDMiddleware())
	app.Use(handler.MetricsMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
		MaxAge:           3600, // Cache preflight responses for 1 hour
	}))
	app.Use(logger.Middleware())

	// Routes
	api := app.Group("/api/v1")

	// Rate limiters, backed by the DB to persist counters across restarts and
	// shared replicas. Uploads get a tighter budget than reads; the public
	// read routes are keyed by IP alone.
	uploadRateLimiter := handler.NewPersistentRateLimiterWithKey(db, "upload", 30, 1*time.Minute, handler.IPAndPrincipalKey)
	readRateLimiter := handler.NewPersistentRateLimiter(db, "read", 120, 1*time.Minute)

	// Body limit middleware: 1MB for JSON API routes, uploads use the
	// app-level limit
	jsonBodyLimit := handler.BodyLimitMiddleware(1 * 1024 * 1024) // 1MB

	auth := handler.AuthMiddleware(cfg.Auth.JWTSecret)

	// File routes. Detail and stream are public: a recipient needs only the
	// file id (and the lock password for decryption), never the uploader's
	// token.
	files := api.Group("/files")
	files.Post("/", auth, uploadRateLimiter.Middleware(), fileHandler.Upload)
	files.Post("/chunks", auth, uploadRateLimiter.Middleware(), fileHandler.UploadChunk)
	files.Get("/", auth, fileHandler.List)
	files.Get("/:id", readRateLimiter.Middleware(), fileHandler.Detail)
	files.Put("/:id", auth, jsonBodyLimit, fileHandler.Edit)
	files.Delete("/:id", auth, fileHandler.Delete)
	files.Get("/:id/stream", readRateLimiter.Middleware(), streamHandler.Stream)

	// Health check handler
	healthHandler := handler.NewHealthHandler(db, cfg.Storage.BlobPath, cfg.Storage.ChunkPath)
	app.Get("/health", healthHandler.Liveness)
	app.Get("/health/ready", healthHandler.Readiness)

	// Metrics endpoint
	metricsHandler := handler.NewMetricsHandler()
	if cfg.Observability.MetricsEnabled {
		if cfg.IsProduction {
			app.Get("/metrics", handler.BearerTokenMiddleware(cfg.Observability.MetricsToken), metricsHandler.Handler())
		} else {
			app.Get("/metrics", metricsHandler.Handler())
		}
	} else {
		logger.Info().Msg("Metrics endpoint disabled")
	}

	// Start background cleanup job for expired files and stale chunks
	cleanupStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				logger.Info().Msg("Running expired data cleanup...")
				if err := fileSvc.DeleteExpired(time.Now()); err != nil {
					logger.Error().Err(err).Msg("Failed to clean up expired files")
				}
				if err := reassembler.SweepStale(cfg.Storage.ChunkTTL); err != nil {
					logger.Error().Err(err).Msg("Failed to sweep stale chunks")
				}
				logger.Info().Msg("Expired data cleanup completed")
			case <-cleanupStop:
				return
			}
		}
	}()

	// Start server in goroutine
	go func() {
		addr := net.JoinHostPort(cfg.Server.BindAddress, cfg.Server.Port)
		logger.Info().
			Str("address", addr).
			Bool("metrics_enabled", cfg.Observability.MetricsEnabled).
			Msg("HTTP server listening")
		if err := app.Listen(addr); err != nil {
			logger.Error().Err(err).Msg("Server stopped")
		}
	}()

	// Graceful shutdown setup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop background jobs
	logger.Info().Msg("Stopping background jobs...")
	close(cleanupStop)
	uploadRateLimiter.Stop()
	readRateLimiter.Stop()

	// Shutdown Fiber app
	logger.Info().Msg("Shutting down HTTP server...")
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
	}

	// Close database connection
	logger.Info().Msg("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing database")
	}

	logger.Info().Msg("Server stopped gracefully")
}
