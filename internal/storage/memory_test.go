package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPoint(id, filename string, chunkIndex int, vector []float32) *Point {
	return &Point{
		ID:     id,
		Vector: vector,
		Payload: Payload{
			Text:        "chunk " + id,
			Filename:    filename,
			ChunkIndex:  chunkIndex,
			TotalChunks: 1,
		},
	}
}

func TestMemoryIndex_RankingOrder(t *testing.T) {
	idx := NewMemoryIndex(3)
	ctx := context.Background()

	// Known geometry: query along the x axis.
	stored, err := idx.Upsert(ctx, []*Point{
		testPoint("a", "a.txt", 0, []float32{1, 0, 0}),   // cos = 1.0
		testPoint("b", "b.txt", 0, []float32{1, 1, 0}),   // cos ~ 0.707
		testPoint("c", "c.txt", 0, []float32{0, 1, 0}),   // cos = 0.0
		testPoint("d", "d.txt", 0, []float32{-1, 0, 0}),  // cos = -1.0
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stored)

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a.txt", hits[0].Filename)
	assert.Equal(t, "b.txt", hits[1].Filename)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestMemoryIndex_StableTieOrder(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	// Identical vectors: scores tie, insertion order must win.
	_, err := idx.Upsert(ctx, []*Point{
		testPoint("first", "first.txt", 0, []float32{1, 0}),
		testPoint("second", "second.txt", 0, []float32{1, 0}),
		testPoint("third", "third.txt", 0, []float32{1, 0}),
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "first.txt", hits[0].Filename)
	assert.Equal(t, "second.txt", hits[1].Filename)
	assert.Equal(t, "third.txt", hits[2].Filename)
}

func TestMemoryIndex_FilenameFilter(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []*Point{
		testPoint("a0", "a.txt", 0, []float32{1, 0}),
		testPoint("b0", "b.txt", 0, []float32{1, 0}),
		testPoint("a1", "a.txt", 1, []float32{0, 1}),
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, &Filter{Filename: "a.txt"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.Equal(t, "a.txt", hit.Filename)
	}

	// Filter matching nothing is an empty result, not an error.
	hits, err = idx.Search(ctx, []float32{1, 0}, 10, &Filter{Filename: "missing.txt"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_EmptyCollectionSearch(t *testing.T) {
	idx := NewMemoryIndex(2)

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_UpsertOverwritesByID(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []*Point{testPoint("p0", "doc.txt", 0, []float32{1, 0})})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, []*Point{testPoint("p0", "doc.txt", 0, []float32{0, 1})})
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PointsCount, "re-upsert of same ID must not grow the collection")

	// The surviving vector is the second one.
	hits, err := idx.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex(3)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []*Point{testPoint("p", "doc.txt", 0, []float32{1, 0})})
	require.Error(t, err)
	var upsertErr *UpsertError
	require.ErrorAs(t, err, &upsertErr)
	assert.Equal(t, 1, upsertErr.Attempted)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestMemoryIndex_DeleteByFilename(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []*Point{
		testPoint("a0", "keep.txt", 0, []float32{1, 0}),
		testPoint("b0", "drop.txt", 0, []float32{1, 0}),
		testPoint("b1", "drop.txt", 1, []float32{0, 1}),
	})
	require.NoError(t, err)

	require.NoError(t, idx.DeleteByFilename(ctx, "drop.txt"))

	names, err := idx.ListFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, names)

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.NotEqual(t, "drop.txt", hit.Filename)
	}

	// Deleting an absent filename completes without error.
	require.NoError(t, idx.DeleteByFilename(ctx, "never-stored.txt"))
}

func TestMemoryIndex_ListFilenamesSorted(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, []*Point{
		testPoint("z", "zeta.txt", 0, []float32{1, 0}),
		testPoint("a", "alpha.txt", 0, []float32{0, 1}),
		testPoint("a2", "alpha.txt", 1, []float32{1, 1}),
	})
	require.NoError(t, err)

	names, err := idx.ListFilenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.txt", "zeta.txt"}, names)
}

func TestMemoryIndex_ConcurrentReadsAndWrites(t *testing.T) {
	idx := NewMemoryIndex(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			name := string(rune('a'+n)) + ".txt"
			_, _ = idx.Upsert(ctx, []*Point{testPoint(name, name, 0, []float32{1, float32(n)})})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = idx.Search(ctx, []float32{1, 0}, 3, nil)
		}()
	}
	wg.Wait()

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), stats.PointsCount)
}
