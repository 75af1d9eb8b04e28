package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"ragtutor/internal/chunker"
	"ragtutor/internal/config"
	"ragtutor/internal/domain"
	"ragtutor/internal/embedding"
	"ragtutor/internal/generator"
	"ragtutor/internal/ingest"
	"ragtutor/internal/retriever"
	"ragtutor/internal/server"
	"ragtutor/internal/session"
	memorystore "ragtutor/internal/vectorstore/memory"
	qdrantstore "ragtutor/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Shared clients are constructed once here and injected; they must
	// be safe for concurrent use across requests.
	embedder, err := embedding.NewOpenAIEmbedder(embedding.Config{
		APIKey:    os.Getenv(cfg.Embedding.APIKeyEnv),
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	}, logger)
	if err != nil {
		logger.Error("embedder init failed", "error", err)
		os.Exit(1)
	}

	gen, err := generator.New(generator.Config{
		APIKey:  os.Getenv(cfg.Generation.APIKeyEnv),
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
	}, logger)
	if err != nil {
		logger.Error("generator init failed", "error", err)
		os.Exit(1)
	}

	var index domain.Index
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		index = qdrantstore.NewStorage(qdrantstore.Config{
			URL:     cfg.VectorStore.Qdrant.URL,
			APIKey:  os.Getenv(cfg.VectorStore.Qdrant.APIKeyEnv),
			Timeout: time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	case "memory":
		index = memorystore.NewStorage()
	default:
		logger.Error("unknown vector store type", "type", cfg.VectorStore.Type)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: os.Getenv(cfg.Redis.PasswordEnv),
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, session memory degraded", "addr", cfg.Redis.Addr, "error", err)
	}
	cancel()

	ch, err := chunker.NewSentenceChunker(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens, nil)
	if err != nil {
		logger.Error("chunker init failed", "error", err)
		os.Exit(1)
	}

	prefix := cfg.VectorStore.CollectionPrefix
	ret := retriever.New(embedder, index, prefix, logger)
	pipeline := ingest.NewPipeline(ch, embedder, index, prefix, logger)
	mem := session.NewStore(rdb, gen, logger)

	e := echo.New()
	e.HideBanner = true
	srv := server.New(ret, pipeline, mem, gen, server.Config{
		TopK:             cfg.Chat.TopK,
		CompactThreshold: cfg.Chat.CompactThreshold,
	}, logger)
	srv.Register(e)

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := e.Start(cfg.Server.Addr); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
