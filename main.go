package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github/itish2003/tenantrag/common"
	"github/itish2003/tenantrag/controller"
	"github/itish2003/tenantrag/embedding"
	"github/itish2003/tenantrag/services"
	"github/itish2003/tenantrag/store"

	"github.com/gin-gonic/gin"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"
)

const watchDebounce = 3 * time.Second

func main() {
	cfg, err := common.LoadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger arbor.ILogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One Gemini client serves both the chat model and the embedder.
	var geminiClient *genai.Client
	if cfg.LLM.Provider == "gemini" || cfg.Embedder.Type == "gemini" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.LLM.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return fmt.Errorf("failed to create Gemini client (is GEMINI_API_KEY set?): %w", err)
		}
		geminiClient = client
		logger.Info().Msg("Connected to Google Gemini")
	}

	embedder, err := embedding.New(cfg.Embedder, geminiClient, logger)
	if err != nil {
		return err
	}

	gateway, err := newGateway(cfg.Store, embedder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gateway.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store client")
		}
	}()

	collection := store.DefaultCollectionConfig(cfg.Store.Collection, embedder.Model())
	if err := gateway.EnsureCollection(ctx, collection); err != nil {
		// Ingestion ensures the collection again before writing.
		logger.Warn().Err(err).Str("collection", collection.Name).Msg("Vector store not ready at startup")
	} else if names, err := gateway.ListCollections(ctx); err == nil {
		logger.Info().Strs("collections", names).Msg("Vector store ready")
	}

	llm, err := services.NewLLMProvider(cfg.LLM, geminiClient, logger)
	if err != nil {
		return err
	}
	parser, err := services.NewParser(cfg.Parser, logger)
	if err != nil {
		return err
	}

	layout := services.WorkspaceLayout{InputRoot: cfg.Workspace.InputDir, OutputRoot: cfg.Workspace.OutputDir}
	extractor := services.NewChunkExtractor(parser, cfg.Chunking, services.NewTokenCounter(logger), logger)
	ingestion := services.NewIngestionService(extractor, gateway, collection, layout, logger)
	rag := services.NewRAGService(gateway, collection.Name, llm, cfg.Retrieval, logger)
	sessions := services.NewSessionService(ingestion, rag, logger)
	files := services.NewFileActions(layout, parser)

	if cfg.Workspace.WatchUploads {
		watcher := services.NewUploadWatcher(layout.InputRoot, sessions, watchDebounce, logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error().Err(err).Msg("Upload watcher stopped")
			}
		}()
	}

	chats := controller.NewSessionStore(2*cfg.Retrieval.HistoryExchanges, time.Duration(cfg.Sessions.TTLMinutes)*time.Minute, cfg.Sessions.MaxSessions)
	ragController := controller.NewRAGController(sessions, gateway, collection.Name, files, chats, logger)
	router := newRouter(cfg, llm, ragController)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("llm", llm.Name()).Str("store", cfg.Store.Backend).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newGateway(cfg common.StoreConfig, embedder embedding.Embedder, logger arbor.ILogger) (store.Gateway, error) {
	if cfg.Backend == "memory" {
		logger.Warn().Msg("Using the in-memory vector store; data is lost on restart")
		return store.NewMemoryGateway(embedder, cfg.BatchSize, logger), nil
	}
	return store.NewChromaGateway(cfg, embedder, logger)
}

func newRouter(cfg *common.Config, llm services.LLMProvider, ragController *controller.RAGController) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+controller.TenantHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "Tenant RAG API",
			"store":      cfg.Store.Backend,
			"collection": cfg.Store.Collection,
			"llm":        llm.Name(),
		})
	})

	ragController.RegisterRoutes(router)
	return router
}
