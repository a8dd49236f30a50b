package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is an in-process Index using brute-force cosine similarity.
// Vectors are L2-normalized at insertion so search reduces to a dot product.
// O(n*D) per query; suitable for development, tests, and small corpora. No
// persistence across restarts.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	points    []memoryPoint
	byID      map[string]int
}

type memoryPoint struct {
	id      string
	vector  []float32
	payload Payload
}

// NewMemoryIndex creates an empty in-process index for vectors of the given
// dimension.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		byID:      make(map[string]int),
	}
}

// EnsureCollection is a no-op for the in-process index; the collection
// exists as soon as the index does.
func (m *MemoryIndex) EnsureCollection(ctx context.Context) error { return nil }

// Upsert stores points, overwriting any existing point with the same ID in
// place so insertion order (and therefore tie order) is preserved.
func (m *MemoryIndex) Upsert(ctx context.Context, points []*Point) (int, error) {
	for _, p := range points {
		if len(p.Vector) != m.dimension {
			return 0, &UpsertError{
				Attempted: len(points),
				Err:       fmt.Errorf("%w: point %s has %d dimensions, expected %d", ErrDimensionMismatch, p.ID, len(p.Vector), m.dimension),
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range points {
		mp := memoryPoint{
			id:      p.ID,
			vector:  normalize(p.Vector),
			payload: p.Payload,
		}
		if i, ok := m.byID[p.ID]; ok {
			m.points[i] = mp
			continue
		}
		m.byID[p.ID] = len(m.points)
		m.points = append(m.points, mp)
	}

	return len(points), nil
}

// Search scans every stored point, scoring by dot product of normalized
// vectors. The sort is stable so equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchHit, error) {
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d", ErrDimensionMismatch, len(vector), m.dimension)
	}
	if topK <= 0 {
		return []SearchHit{}, nil
	}

	query := normalize(vector)

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]SearchHit, 0, len(m.points))
	for _, p := range m.points {
		if filter != nil && filter.Filename != "" && p.payload.Filename != filter.Filename {
			continue
		}
		hits = append(hits, SearchHit{
			Text:       p.payload.Text,
			Filename:   p.payload.Filename,
			ChunkIndex: p.payload.ChunkIndex,
			Score:      dot(p.vector, query),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteByFilename removes all points for filename. Removing nothing is fine.
func (m *MemoryIndex) DeleteByFilename(ctx context.Context, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.points[:0]
	for _, p := range m.points {
		if p.payload.Filename != filename {
			kept = append(kept, p)
		}
	}
	m.points = kept

	m.byID = make(map[string]int, len(m.points))
	for i, p := range m.points {
		m.byID[p.id] = i
	}
	return nil
}

// ListFilenames returns the distinct stored filenames, sorted.
func (m *MemoryIndex) ListFilenames(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range m.points {
		if p.payload.Filename != "" {
			seen[p.payload.Filename] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stats reports the point count; the in-process index is always "green".
func (m *MemoryIndex) Stats(ctx context.Context) (*CollectionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := uint64(len(m.points))
	return &CollectionStats{
		Name:         DefaultCollection,
		PointsCount:  n,
		VectorsCount: n,
		Status:       "green",
	}, nil
}

// Close is a no-op for the in-process index.
func (m *MemoryIndex) Close() error { return nil }

// normalize returns the L2-normalized copy of v. The zero vector is returned
// unchanged so content-free sentinels score zero against everything.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return append([]float32(nil), v...)
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
