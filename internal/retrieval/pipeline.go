// Package retrieval composes the chunker, embedder, and vector index into
// the ingest and query operations of the document QA pipeline.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/learnix/learnix-server/internal/chunker"
	"github.com/learnix/learnix-server/internal/embedding"
	"github.com/learnix/learnix-server/internal/storage"
)

// ErrInvalidInput reports a request rejected before any backend call: an
// empty question, a non-positive top_k, or invalid chunk parameters.
var ErrInvalidInput = errors.New("invalid input")

// Options controls chunking during ingestion.
type Options struct {
	ChunkSize int
	Overlap   int
}

// IngestResult reports the outcome of one document ingestion.
type IngestResult struct {
	Status     string `json:"status"` // "success" or "error"
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// QueryResult carries the ranked hits for a question. Found distinguishes an
// empty collection / no matches (not an error) from actual results, so the
// caller can answer "no relevant content" instead of fabricating one.
type QueryResult struct {
	Hits  []storage.SearchHit `json:"hits"`
	Found bool                `json:"found"`
}

// Pipeline orchestrates ingest and query against an index backend. Safe for
// concurrent use as long as the index backend is; two concurrent ingestions
// of the same filename race with last-writer-wins per point.
type Pipeline struct {
	embedder  embedding.Embedder
	index     storage.Index
	logger    *slog.Logger
	chunkSize int
	overlap   int
}

// NewPipeline wires a pipeline from its components. Zero chunk options fall
// back to the chunker defaults.
func NewPipeline(embedder embedding.Embedder, index storage.Index, logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = chunker.DefaultOverlap
	}
	return &Pipeline{
		embedder:  embedder,
		index:     index,
		logger:    logger,
		chunkSize: opts.ChunkSize,
		overlap:   opts.Overlap,
	}
}

// ChunkID derives the deterministic point ID for a chunk position. It is a
// pure function of (filename, chunk index), so re-ingesting a file overwrites
// its points in place instead of duplicating them.
func ChunkID(filename string, chunkIndex int) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, fmt.Appendf(nil, "%s_%d", filename, chunkIndex)).String()
}

// IngestDocument chunks rawText, embeds every chunk, and upserts the whole
// document as one batch. Re-ingesting identical content is idempotent.
//
// A document that yields no chunks (empty extracted text) returns an error
// *status*, not a Go error; infrastructure failures (embedder, index) are
// returned as errors for the caller to translate.
func (p *Pipeline) IngestDocument(ctx context.Context, filename, rawText string, metadata map[string]any) (*IngestResult, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}

	chunks, err := chunker.Chunk(rawText, p.chunkSize, p.overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if len(chunks) == 0 {
		return &IngestResult{
			Status:  "error",
			Message: "no text to index",
		}, nil
	}
	p.logger.Debug("chunked document", "filename", filename, "chunks", len(chunks))

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	points := make([]*storage.Point, len(chunks))
	for i, text := range chunks {
		points[i] = &storage.Point{
			ID:     ChunkID(filename, i),
			Vector: vectors[i],
			Payload: storage.Payload{
				Text:        text,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				Extra:       metadata,
			},
		}
	}

	stored, err := p.index.Upsert(ctx, points)
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	p.logger.Info("ingested document", "filename", filename, "chunks", stored)
	return &IngestResult{
		Status:     "success",
		ChunkCount: stored,
		Message:    fmt.Sprintf("stored %d chunks", stored),
	}, nil
}

// AnswerQuery embeds the question and returns the topK most similar chunks
// in descending score order. No hits is a successful result with Found false,
// never an error; backend failures propagate as errors and must not be
// reported as "no results".
func (p *Pipeline) AnswerQuery(ctx context.Context, question string, topK int) (*QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidInput, topK)
	}

	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := p.index.Search(ctx, vector, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	p.logger.Debug("query answered", "hits", len(hits), "top_k", topK)
	return &QueryResult{
		Hits:  hits,
		Found: len(hits) > 0,
	}, nil
}

// DeleteDocument removes every indexed chunk of filename.
func (p *Pipeline) DeleteDocument(ctx context.Context, filename string) error {
	if filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if err := p.index.DeleteByFilename(ctx, filename); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	p.logger.Info("deleted document", "filename", filename)
	return nil
}

// ListDocuments returns the distinct filenames currently indexed.
func (p *Pipeline) ListDocuments(ctx context.Context) ([]string, error) {
	return p.index.ListFilenames(ctx)
}

// Stats returns the index's diagnostic snapshot.
func (p *Pipeline) Stats(ctx context.Context) (*storage.CollectionStats, error) {
	return p.index.Stats(ctx)
}
