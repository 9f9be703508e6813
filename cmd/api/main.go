// @title Quiz Forge API
// @version 1.0
// @description Generates graded quizzes from an indexed document library.
// @host localhost:8001
// @BasePath /
// @schemes http https
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"quiz-forge/internal/adapter"
	"quiz-forge/internal/adapter/embedding"
	"quiz-forge/internal/adapter/jobstore"
	"quiz-forge/internal/adapter/llm"
	"quiz-forge/internal/adapter/retrieval"
	"quiz-forge/internal/cache"
	"quiz-forge/internal/config"
	"quiz-forge/internal/database"
	"quiz-forge/internal/domain"
	"quiz-forge/internal/handler"
	"quiz-forge/internal/logger"
	"quiz-forge/internal/middleware"
	"quiz-forge/internal/repository"
	"quiz-forge/internal/service"
	"quiz-forge/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	// Redis is optional: without it jobs live only in memory and embeddings are not cached.
	var appCache domain.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			appCache = adapter.NewRedisCacheAdapter(redisClient)
			appLogger.Info("Successfully connected to Redis", zap.String("address", cfg.Redis.Address))
		}
	}

	embedder, err := embedding.NewService(cfg.Embedding, appCache, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create embedding service", zap.Error(err))
	}
	appLogger.Info("Embedding service initialized", zap.String("source", cfg.Embedding.Source))
	index := retrieval.NewIndex(cfg.Retrieval, embedder, appLogger)

	factory, err := llm.NewClientFactory(cfg.LLM)
	if err != nil {
		appLogger.Fatal("Failed to create LLM client factory", zap.Error(err))
	}
	models, err := llm.NewManager(factory, llm.DefaultCatalog(), cfg.LLM.DefaultModel, cfg.LLM.Temperature, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to load default model", zap.Error(err))
	}
	appLogger.Info("Model manager initialized", zap.String("active_model", models.Active().ID))

	var store domain.JobStore = jobstore.NewMemoryStore()
	if appCache != nil {
		store = jobstore.NewCachedStore(store, appCache, cfg.Jobs.SnapshotTTL, appLogger)
	}

	var archive domain.QuizArchive
	if cfg.ArchiveEnabled() {
		db, err := database.NewSQLXOracleDB(context.Background(), cfg.GetDSN(), appLogger)
		if err != nil {
			appLogger.Warn("Quiz archive disabled", zap.Error(err))
		} else {
			defer db.Close()
			archive = repository.NewQuizArchiveAdapter(db, appLogger)
		}
	}

	architect := service.NewTopicArchitect(index, cfg.LLM.CallTimeout, appLogger)
	builder := service.NewBatchBuilder(store, index, architect, cfg.Generation, cfg.LLM.CallTimeout, appLogger)
	jobService := service.NewQuizJobService(store, models, builder, archive, cfg.Jobs, appLogger)
	assistant := service.NewAssistantService(models, index, service.NewGradeCache(appCache, appLogger), cfg.LLM.CallTimeout, appLogger)

	validator := validation.NewValidator()
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
		BodyLimit:    1024 * 1024,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{AllowOrigins: "*", AllowMethods: "GET,POST,DELETE,OPTIONS", AllowHeaders: "Origin,Content-Type,Accept", MaxAge: 300}))
	app.Use(recover.New())

	handler.SetupRoutes(app, handler.Handlers{
		Jobs:       handler.NewQuizJobHandler(jobService, validator),
		Assistant:  handler.NewAssistantHandler(assistant, validator),
		System:     handler.NewSystemHandler(models, index, validator),
		Validation: middleware.NewValidationMiddleware(validator),
	})

	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Server.Port), zap.String("env", cfg.Logger.Env))
		if err := app.Listen(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := jobService.Shutdown(ctx); err != nil {
		appLogger.Error("Running jobs did not stop in time", zap.Error(err))
	}
	appLogger.Info("Server exited gracefully")
}
