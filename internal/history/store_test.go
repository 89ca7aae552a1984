package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_AppendListCount(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id1, err := store.Append(ctx, "conv-a", "user", "hello")
			require.NoError(t, err)
			_, err = store.Append(ctx, "conv-b", "user", "other conversation")
			require.NoError(t, err)
			ids, err := store.AppendBatch(ctx, "conv-a", []Record{
				{Role: "assistant", Payload: `{"content":"","tool_calls":[]}`},
				{Role: "tool", Payload: `{"tool_results":[]}`},
			})
			require.NoError(t, err)
			require.Len(t, ids, 2)
			require.Greater(t, ids[0], id1)
			require.Greater(t, ids[1], ids[0])

			got, err := store.List(ctx, "conv-a", 0)
			require.NoError(t, err)
			require.Len(t, got, 3)
			require.Equal(t, "hello", got[0].Payload)
			require.Equal(t, "conv-a", got[0].ConversationID)
			require.False(t, got[0].CreatedAt.IsZero())
			for i := 1; i < len(got); i++ {
				require.Greater(t, got[i].SequenceID, got[i-1].SequenceID)
			}

			n, err := store.Count(ctx, "conv-a")
			require.NoError(t, err)
			require.Equal(t, 3, n)
			n, err = store.Count(ctx, "conv-b")
			require.NoError(t, err)
			require.Equal(t, 1, n)
		})
	}
}

func TestStore_ListLimitKeepsMostRecent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, p := range []string{"one", "two", "three", "four"} {
				_, err := store.Append(ctx, "c", "user", p)
				require.NoError(t, err)
			}
			got, err := store.List(ctx, "c", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, "three", got[0].Payload)
			require.Equal(t, "four", got[1].Payload)
		})
	}
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Append(ctx, "c", "user", "a")
			require.NoError(t, err)
			_, err = store.Append(ctx, "c", "assistant", "b")
			require.NoError(t, err)
			_, err = store.Append(ctx, "keep", "user", "c")
			require.NoError(t, err)

			deleted, err := store.Clear(ctx, "c")
			require.NoError(t, err)
			require.Equal(t, 2, deleted)

			got, err := store.List(ctx, "c", 0)
			require.NoError(t, err)
			require.Empty(t, got)
			n, err := store.Count(ctx, "c")
			require.NoError(t, err)
			require.Zero(t, n)

			deleted, err = store.Clear(ctx, "c")
			require.NoError(t, err)
			require.Zero(t, deleted)

			n, err = store.Count(ctx, "keep")
			require.NoError(t, err)
			require.Equal(t, 1, n)
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = store.Append(ctx, "c", "user", "remember me")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.List(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "remember me", got[0].Payload)
}

func TestMemoryStore_ClosedAndCancelled(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Append(ctx, "c", "user", "x")
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, store.Close())
	_, err = store.Count(context.Background(), "c")
	require.ErrorIs(t, err, ErrClosed)
}
