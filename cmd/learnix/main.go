// Package main provides the learnix CLI for managing the document index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/learnix/learnix-server/internal/embedding"
	"github.com/learnix/learnix-server/internal/extract"
	"github.com/learnix/learnix-server/internal/loader"
	"github.com/learnix/learnix-server/internal/retrieval"
	"github.com/learnix/learnix-server/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "learnix",
	Short: "Document index management tool",
	Long: `CLI tool for ingesting and querying the Learnix document index.

Environment variables:
  QDRANT_HOST         Qdrant hostname (default: localhost)
  QDRANT_PORT         Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION   Collection name (default: learnix_documents)
  OPENAI_API_KEY      OpenAI API key for embeddings (required)`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Ingest all supported documents from a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Retrieve the chunks most relevant to a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage indexed documents",
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a document from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var topK int

func init() {
	askCmd.Flags().IntVar(&topK, "top-k", 3, "number of chunks to retrieve")
	documentsCmd.AddCommand(documentsListCmd, documentsDeleteCmd)
	rootCmd.AddCommand(ingestCmd, askCmd, documentsCmd, statsCmd)
}

func main() {
	// Load .env file if present, ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildPipeline wires the embedder and Qdrant index shared by all commands.
func buildPipeline(ctx context.Context) (*retrieval.Pipeline, func(), error) {
	host := getEnv("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnv("QDRANT_COLLECTION", storage.DefaultCollection)
	dimension := getEnvInt("EMBEDDING_DIMENSION", embedding.DefaultDimension)
	if dimension <= 0 {
		dimension = embedding.DefaultDimension
	}

	index, err := storage.NewQdrantIndex(host, port, collection, dimension)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to Qdrant at %s:%d: %w", host, port, err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		index.Close()
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	embedder := embedding.NewOpenAIEmbedder(os.Getenv("OPENAI_API_KEY"), dimension)
	pipeline := retrieval.NewPipeline(embedder, index, slog.Default(), retrieval.Options{})
	return pipeline, func() { index.Close() }, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	docs, err := loader.Scan(args[0], slog.Default())
	if err != nil {
		return fmt.Errorf("scan %s: %w", args[0], err)
	}
	if len(docs) == 0 {
		fmt.Println("No supported documents found.")
		return nil
	}

	pipeline, closeIndex, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	var ingested, failed, totalChunks int
	for _, doc := range docs {
		text, err := extract.Extract(doc.Name, doc.Content)
		if err != nil {
			fmt.Printf("  skip %s: %v\n", doc.Name, err)
			failed++
			continue
		}
		result, err := pipeline.IngestDocument(ctx, doc.Name, extract.Clean(text), nil)
		if err != nil {
			fmt.Printf("  fail %s: %v\n", doc.Name, err)
			failed++
			continue
		}
		if result.Status != "success" {
			fmt.Printf("  skip %s: %s\n", doc.Name, result.Message)
			failed++
			continue
		}
		fmt.Printf("  ok   %s (%d chunks)\n", doc.Name, result.ChunkCount)
		ingested++
		totalChunks += result.ChunkCount
	}

	fmt.Println()
	fmt.Printf("Ingested %d/%d documents, %d chunks, in %s\n",
		ingested, len(docs), totalChunks, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d documents failed", failed)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, closeIndex, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	result, err := pipeline.AnswerQuery(ctx, args[0], topK)
	if err != nil {
		return err
	}
	if !result.Found {
		fmt.Println("No relevant content found in the uploaded documents.")
		return nil
	}

	for i, hit := range result.Hits {
		fmt.Printf("%d. %s (chunk %d, score %.3f)\n", i+1, hit.Filename, hit.ChunkIndex, hit.Score)
		fmt.Printf("   %s\n\n", hit.Text)
	}
	return nil
}

func runDocumentsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, closeIndex, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	filenames, err := pipeline.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(filenames) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}
	for _, name := range filenames {
		fmt.Println(name)
	}
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, closeIndex, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	if err := pipeline.DeleteDocument(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, closeIndex, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer closeIndex()

	stats, err := pipeline.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Collection: %s\n", stats.Name)
	fmt.Printf("  Points:  %d\n", stats.PointsCount)
	fmt.Printf("  Vectors: %d\n", stats.VectorsCount)
	fmt.Printf("  Status:  %s\n", stats.Status)
	return nil
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
