package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AddAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	msg, err := store.Add(ctx, "What is Go?", "A programming language.", []string{"go.md"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	messages, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "What is Go?", messages[0].Question)
	assert.Equal(t, "A programming language.", messages[0].Answer)
	assert.Equal(t, []string{"go.md"}, messages[0].Sources)
}

func TestStore_RecentOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Add(ctx, fmt.Sprintf("q%d", i), "a", nil)
		require.NoError(t, err)
	}

	messages, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	// Oldest first.
	assert.Equal(t, "q0", messages[0].Question)
	assert.Equal(t, "q2", messages[2].Question)
}

func TestStore_CapsAtMaxMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < maxMessages+10; i++ {
		_, err := store.Add(ctx, fmt.Sprintf("q%d", i), "a", nil)
		require.NoError(t, err)
	}

	messages, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, messages, maxMessages)
	// The oldest surviving message is the first one past the pruned prefix.
	assert.Equal(t, "q10", messages[0].Question)
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	msg, err := store.Add(ctx, "q", "a", nil)
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = store.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStore_Clear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Add(ctx, "q", "a", nil)
		require.NoError(t, err)
	}
	require.NoError(t, store.Clear(ctx))

	messages, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_Stats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMessages)
	assert.Nil(t, stats.Oldest)
	assert.Nil(t, stats.Newest)

	_, err = store.Add(ctx, "q", "a", nil)
	require.NoError(t, err)

	stats, err = store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMessages)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
}

func TestStore_NilSourcesStoredAsEmpty(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "q", "a", nil)
	require.NoError(t, err)

	messages, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.NotNil(t, messages[0].Sources)
	assert.Empty(t, messages[0].Sources)
}
