// Package main provides the Learnix HTTP API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/learnix/learnix-server/internal/answer"
	"github.com/learnix/learnix-server/internal/embedding"
	"github.com/learnix/learnix-server/internal/history"
	"github.com/learnix/learnix-server/internal/retrieval"
	"github.com/learnix/learnix-server/internal/server"
	"github.com/learnix/learnix-server/internal/storage"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(getEnv("LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	apiKey := os.Getenv("OPENAI_API_KEY")
	dimension := getEnvInt("EMBEDDING_DIMENSION", embedding.DefaultDimension)
	if dimension <= 0 {
		dimension = embedding.DefaultDimension
	}
	// Embedder and index must agree on the dimension or every upsert fails.
	embedder := embedding.NewOpenAIEmbedder(apiKey, dimension)

	index, err := buildIndex(ctx, logger, dimension)
	if err != nil {
		return err
	}
	defer index.Close()

	pipeline := retrieval.NewPipeline(embedder, index, logger, retrieval.Options{
		ChunkSize: getEnvInt("CHUNK_SIZE", 0),
		Overlap:   getEnvInt("CHUNK_OVERLAP", -1),
	})

	var generator answer.Generator
	if apiKey != "" {
		generator = answer.NewOpenAIGenerator(apiKey)
	} else {
		logger.Warn("OPENAI_API_KEY not set, falling back to template answers")
		generator = answer.NewTemplateGenerator()
	}

	store, err := history.Open(getEnv("HISTORY_DB", "learnix_history.db"))
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	api := server.New(&server.Config{
		Pipeline:  pipeline,
		Generator: generator,
		History:   store,
		Logger:    logger,
	})

	addr := "0.0.0.0:" + getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildIndex selects the vector index backend: a Qdrant server for
// production, or the in-process index for local runs without one.
func buildIndex(ctx context.Context, logger *slog.Logger, dimension int) (storage.Index, error) {
	backend := getEnv("INDEX_BACKEND", "qdrant")
	switch backend {
	case "memory":
		logger.Info("using in-process vector index")
		return storage.NewMemoryIndex(dimension), nil
	case "qdrant":
		host := getEnv("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollection)

		index, err := storage.NewQdrantIndex(host, port, collection, dimension)
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", host, port, err)
		}
		if err := index.EnsureCollection(ctx); err != nil {
			index.Close()
			return nil, fmt.Errorf("ensure collection %s: %w", collection, err)
		}
		logger.Info("connected to qdrant", "host", host, "port", port, "collection", collection)
		return index, nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (want qdrant or memory)", backend)
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
