package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/ragswitch/ragswitch/internal/adapter/ai"
	"github.com/ragswitch/ragswitch/internal/adapter/store"
	"github.com/ragswitch/ragswitch/internal/adapter/vcs"
	"github.com/ragswitch/ragswitch/internal/factory"
	"github.com/ragswitch/ragswitch/internal/handler"
	"github.com/ragswitch/ragswitch/internal/ingest"
	"github.com/ragswitch/ragswitch/internal/service"
	"github.com/ragswitch/ragswitch/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting RagSwitch",
		"port", cfg.Port,
		"redis", cfg.RedisAddr,
		"embedding_dimension", cfg.EmbeddingDimension,
	)

	// ── Redis (shared config store) ──────────────────────────────────────
	redisStore, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.EnsureSchema(context.Background(), cfg.EmbeddingDimension); err != nil {
		slog.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	vectorStore := store.NewVectorStore(pgStore)

	// ── Adapters ─────────────────────────────────────────────────────────
	gitVCS := vcs.NewGitProvider()
	extractor := ingest.NewPlainTextExtractor()
	splitter := ingest.NewSplitter(cfg.ChunkMaxTokens)

	// ── Provider Factories (Strategy Pattern) ────────────────────────────
	chatFactory := factory.NewChatFactory(redisStore,
		ai.OpenAIChatStrategy{},
		ai.OllamaChatStrategy{},
		ai.AnthropicChatStrategy{},
	)
	embeddingFactory := factory.NewEmbeddingFactory(redisStore, vectorStore,
		ai.OpenAIEmbeddingStrategy{},
		ai.OllamaEmbeddingStrategy{},
	)

	// ── Services ─────────────────────────────────────────────────────────
	configService := service.NewConfigService(redisStore, chatFactory, embeddingFactory)
	aiService := service.NewAIService(chatFactory, embeddingFactory, vectorStore, cfg.RagTopK, cfg.RagSimilarityThreshold)
	ragService, err := service.NewRAGService(
		redisStore, vectorStore, embeddingFactory,
		gitVCS, extractor, splitter,
		cfg.IngestionWorkers, cfg.CloneBasePath,
	)
	if err != nil {
		slog.Error("failed to start ingestion workers", "error", err)
		os.Exit(1)
	}
	defer ragService.Close()

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // streaming responses can run long
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"app":    cfg.AppName,
		})
	})

	// ── Routes ───────────────────────────────────────────────────────────
	api := app.Group("/api/v1")

	handler.NewConfigHandler(configService).Register(api)
	handler.NewAIHandler(aiService).Register(api)
	handler.NewRAGHandler(ragService).Register(api)

	// ── Start ────────────────────────────────────────────────────────────
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
