package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// upsertBatchSize bounds points per upsert request.
	upsertBatchSize = 100

	// defaultRequestTimeout bounds every individual backend call so a dead
	// Qdrant surfaces as an error instead of a hang.
	defaultRequestTimeout = 30 * time.Second
)

// QdrantIndex is the remote Index implementation backed by a Qdrant server
// over gRPC. Storage, ANN search, and filtering are delegated to Qdrant; this
// type builds requests, maps responses to SearchHit, and translates backend
// failures into the package error taxonomy.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	timeout    time.Duration
}

// NewQdrantIndex connects to Qdrant and verifies health with exponential
// backoff, failing fast if the server stays unreachable.
func NewQdrantIndex(host string, port int, collection string, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	if collection == "" {
		collection = DefaultCollection
	}

	idx := &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  uint64(dimension),
		timeout:    defaultRequestTimeout,
	}

	if err := idx.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return idx, nil
}

// healthCheckWithRetry pings Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantIndex) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance and the
// configured vector dimension if it does not exist, plus a payload index on
// filename for fast filtered search and deletion. Idempotent.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", ErrBackendUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     s.dimension,
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Without this index, filename-filtered search and deletion degrade to
	// full scans on the server.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      FieldFilename,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create filename index: %w", err)
	}

	return nil
}

// Upsert stores points in batches of upsertBatchSize, retrying each batch
// with exponential backoff. A batch that still fails is reported as an
// *UpsertError carrying the full attempted count.
func (s *QdrantIndex) Upsert(ctx context.Context, points []*Point) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	for i, p := range points {
		if uint64(len(p.Vector)) != s.dimension {
			return 0, &UpsertError{
				Attempted: len(points),
				Err:       fmt.Errorf("%w: point %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(p.Vector), s.dimension),
			}
		}
	}

	stored := 0
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))

		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(payloadMap(p.Payload)),
			})
		}

		if err := s.upsertWithRetry(ctx, batch); err != nil {
			return stored, &UpsertError{
				Attempted: len(points),
				Err:       fmt.Errorf("%w: batch %d-%d: %v", ErrBackendUnavailable, start, end, err),
			}
		}
		stored = end
	}

	return stored, nil
}

// upsertWithRetry performs one upsert request with exponential backoff.
func (s *QdrantIndex) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		_, err := s.client.Upsert(opCtx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Search queries Qdrant for the topK nearest points, optionally restricted
// to one filename. Qdrant returns cosine similarity directly as the score.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchHit, error) {
	if uint64(len(vector)) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		return []SearchHit{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrBackendUnavailable, err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, SearchHit{
			Text:       payload[FieldText].GetStringValue(),
			Filename:   payload[FieldFilename].GetStringValue(),
			ChunkIndex: int(payload[FieldChunkIndex].GetIntegerValue()),
			Score:      result.Score,
		})
	}
	return hits, nil
}

// DeleteByFilename removes all points whose payload filename matches.
// Deleting a filename with no points succeeds.
func (s *QdrantIndex) DeleteByFilename(ctx context.Context, filename string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(FieldFilename, filename)},
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrBackendUnavailable, filename, err)
	}
	return nil
}

// ListFilenames scrolls the whole collection, accumulating distinct
// filenames. Only the filename payload field is transferred.
func (s *QdrantIndex) ListFilenames(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var offset *qdrant.PointId
	batchSize := uint32(100)

	for {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		results, err := s.client.Scroll(opCtx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(FieldFilename),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: scroll: %v", ErrBackendUnavailable, err)
		}

		for _, result := range results {
			if name := result.Payload[FieldFilename].GetStringValue(); name != "" {
				seen[name] = struct{}{}
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats fetches collection counters. Failures are returned as errors for the
// caller to degrade into a diagnostic payload.
func (s *QdrantIndex) Stats(ctx context.Context) (*CollectionStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: get collection: %v", ErrBackendUnavailable, err)
	}

	stats := &CollectionStats{
		Name:        s.collection,
		PointsCount: collection.GetPointsCount(),
		Status:      collection.GetStatus().String(),
	}
	if vc := collection.GetIndexedVectorsCount(); vc > 0 {
		stats.VectorsCount = vc
	}
	return stats, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// payloadMap flattens a Payload into the Qdrant value map. Caller metadata
// keys sit alongside the fixed fields, which win on collision.
func payloadMap(p Payload) map[string]any {
	m := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}
	m[FieldText] = p.Text
	m[FieldFilename] = p.Filename
	m[FieldChunkIndex] = p.ChunkIndex
	m[FieldTotalChunks] = p.TotalChunks
	return m
}

// qdrantFilter maps the portable Filter to a Qdrant must-match filter.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || f.Filename == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(FieldFilename, f.Filename)},
	}
}
