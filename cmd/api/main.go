package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/api/handlers"
	"github.com/plume-ai/backend/internal/assembler"
	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/cache"
	"github.com/plume-ai/backend/internal/domain"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/internal/middleware/ratelimit"
	"github.com/plume-ai/backend/internal/middleware/security"
	"github.com/plume-ai/backend/internal/middleware/validation"
	"github.com/plume-ai/backend/internal/orchestrator"
	"github.com/plume-ai/backend/internal/preferences"
	"github.com/plume-ai/backend/internal/search/web"
	"github.com/plume-ai/backend/internal/session"
	"github.com/plume-ai/backend/internal/storage/sqlite"
	"github.com/plume-ai/backend/internal/validator"
	milvusindex "github.com/plume-ai/backend/internal/vector/milvus"
	"github.com/plume-ai/backend/pkg/config"
	appLogger "github.com/plume-ai/backend/pkg/logger"
)

// webAdapter bridges the search client to the orchestrator interface.
type webAdapter struct {
	client *web.Client
}

func (a webAdapter) Search(ctx context.Context, query string, maxResults int) ([]orchestrator.SearchHit, error) {
	metrics.WebSearchTriggered.Inc()
	results, err := a.client.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	hits := make([]orchestrator.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, orchestrator.SearchHit{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return hits, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("starting Plume API server")

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		appLogger.Fatal("failed to create data directory", zap.Error(err))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Fatal("failed to create database directory", zap.Error(err))
	}

	db, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("failed to open sqlite database", zap.Error(err))
	}
	defer db.Close()

	sessions, err := session.NewStore(db)
	if err != nil {
		appLogger.Fatal("failed to initialize session store", zap.Error(err))
	}

	registry := backend.NewRegistry(cfg)
	registry.Initialize()
	defer registry.Shutdown()

	var store *knowledge.Store
	if cfg.Vector.Provider == "milvus" && cfg.Vector.Endpoint != "" {
		milvusClient, err := milvusindex.NewClient(cfg.Vector.Endpoint, cfg.Vector.APIKey, cfg.Vector.CollectionName, cfg.Vector.Dim)
		if err != nil {
			appLogger.Fatal("failed to create milvus client", zap.Error(err))
		}
		defer milvusClient.Close()
		if err := milvusClient.EnsureCollection(context.Background()); err != nil {
			appLogger.Fatal("failed to prepare milvus collection", zap.Error(err))
		}
		store, err = knowledge.NewStoreWithRemoteIndex(db, registry, milvusClient)
		if err != nil {
			appLogger.Fatal("failed to initialize knowledge store", zap.Error(err))
		}
	} else {
		store, err = knowledge.NewStore(db, registry)
		if err != nil {
			appLogger.Fatal("failed to initialize knowledge store", zap.Error(err))
		}
	}

	if err := store.LoadBuiltins(context.Background()); err != nil {
		appLogger.Warn("failed to load builtin knowledge base", zap.Error(err))
	}

	examples, err := domain.NewExampleStore(filepath.Join(cfg.Data.Dir, "fewshot.json"))
	if err != nil {
		appLogger.Fatal("failed to load few-shot corpus", zap.Error(err))
	}

	prefs, err := preferences.NewStore(cfg.Data.Dir)
	if err != nil {
		appLogger.Fatal("failed to load preference store", zap.Error(err))
	}

	var responseCache cache.Cache
	if cfg.Redis.Host != "" {
		responseCache, err = cache.NewRedis(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("redis unreachable, using in-process cache", zap.Error(err))
			responseCache = cache.NewLRU()
		}
	} else {
		responseCache = cache.NewLRU()
	}
	defer responseCache.Close()

	var searcher orchestrator.WebSearcher
	if cfg.Search.Enabled {
		searcher = webAdapter{client: web.NewClient(cfg.Search.Provider, cfg.Search.TavilyKey, cfg.Search.SerpAPIKey)}
	}

	orch := orchestrator.New(
		cfg,
		registry,
		examples,
		assembler.New(store),
		validator.New(registry),
		prefs,
		searcher,
	)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{IsDevelopment: true}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 120,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	messageHandler := handlers.NewMessageHandler(orch, sessions, responseCache)
	feedbackHandler := handlers.NewFeedbackHandler(prefs)
	documentHandler := handlers.NewDocumentHandler(store, responseCache)
	healthHandler := handlers.NewHealthHandler(registry, sessions)
	wsHandler := handlers.NewWebSocketHandler(orch, sessions)

	api := app.Group("/api/v1")

	api.Post("/chat/session/:id/message", messageHandler.HandleMessage)
	api.Get("/chat/session/:id", messageHandler.GetSession)
	api.Put("/chat/session/:id/title", messageHandler.UpdateSessionTitle)
	api.Delete("/chat/session/:id", messageHandler.DeleteSession)

	api.Post("/feedback", feedbackHandler.HandleFeedback)
	api.Get("/feedback/stats", feedbackHandler.GetStats)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)

	api.Get("/backends", healthHandler.Backends)

	app.Get("/health", healthHandler.Health)
	app.Get("/health/live", healthHandler.Health)
	app.Get("/health/ready", healthHandler.Ready)
	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("server shutting down gracefully")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("server shutdown failed", zap.Error(err))
	}
	if err := prefs.Flush(); err != nil {
		appLogger.Error("preference flush failed", zap.Error(err))
	}
	if err := examples.Save(); err != nil {
		appLogger.Error("few-shot corpus save failed", zap.Error(err))
	}
	appLogger.Info("server stopped")
}
