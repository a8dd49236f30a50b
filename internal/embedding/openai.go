package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Model is the OpenAI embedding model. text-embedding-3-small supports
// truncating output vectors, which is how the deployment dimension of 384 is
// enforced server-side.
const Model = "text-embedding-3-small"

// maxBatchSize caps texts per API request to stay under token-per-minute limits.
const maxBatchSize = 500

// OpenAIEmbedder generates embeddings through the OpenAI API. The underlying
// client is constructed lazily on first use and reused for the lifetime of
// the process; a failed construction is retried on the next call.
type OpenAIEmbedder struct {
	apiKey    string
	dimension int

	mu  sync.Mutex
	cli *openai.Client
}

// NewOpenAIEmbedder returns an embedder producing vectors of the given
// dimension (DefaultDimension when dim <= 0). The API key is validated on
// first embed, not here, so construction never blocks startup.
func NewOpenAIEmbedder(apiKey string, dim int) *OpenAIEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &OpenAIEmbedder{
		apiKey:    apiKey,
		dimension: dim,
	}
}

// Dimension returns the configured vector length.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// client returns the shared OpenAI client, constructing it at most once.
// Concurrent first calls are serialized so only one construction happens.
func (e *OpenAIEmbedder) client() (*openai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cli != nil {
		return e.cli, nil
	}
	if e.apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrModelUnavailable)
	}

	cli := openai.NewClient(option.WithAPIKey(e.apiKey))
	e.cli = &cli
	return e.cli, nil
}

// Embed returns the vector for a single text. Blank input short-circuits to
// the zero vector without touching the backend.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if isBlank(text) {
		return ZeroVector(e.dimension), nil
	}
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order. Blank entries map to zero vectors; only
// non-blank texts are sent to the API, batched in groups of maxBatchSize.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if isBlank(text) {
			vectors[i] = ZeroVector(e.dimension)
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	for start := 0; start < len(pending); start += maxBatchSize {
		end := min(start+maxBatchSize, len(pending))
		embedded, err := e.embedBatch(ctx, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		for j, vec := range embedded {
			vectors[pendingIdx[start+j]] = vec
		}
	}

	return vectors, nil
}

// embedBatch performs one embeddings request with exponential backoff on rate
// limit responses. Other API errors are permanent for the current request.
func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	cli, err := e.client()
	if err != nil {
		return nil, err
	}

	var vectors [][]float32
	operation := func() error {
		resp, err := cli.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:      Model,
			Dimensions: openai.Int(int64(e.dimension)),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return vectors, nil
}

// isRateLimitError checks for HTTP 429 from the OpenAI API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
