package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/gitdigger/pkg/record"
	"github.com/walteh/gitdigger/pkg/ref"
)

func setupTestLogger(t *testing.T) context.Context {
	logger := zerolog.New(zerolog.TestWriter{T: t}).With().Timestamp().Logger()
	return logger.WithContext(context.Background())
}

func setupTestStore(t *testing.T) *Store {
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err, "opening store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testIdentity(name string) ref.Identity {
	return ref.Identity{Kind: ref.GitHubLike, Owner: "acme", Name: name}
}

func TestStorePutGet(t *testing.T) {
	ctx := setupTestLogger(t)
	store := setupTestStore(t)

	t.Run("get_missing_returns_nil", func(t *testing.T) {
		st, err := store.Get(ctx, testIdentity("nope"))
		require.NoError(t, err)
		assert.Nil(t, st)
	})

	t.Run("round_trips_every_field", func(t *testing.T) {
		stars := 41
		forks := 7
		want := SyncState{
			Identity:    testIdentity("widgets"),
			LastFetched: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
			LastRef:     "abc123",
			ClonePath:   "/tmp/repos/github/acme/widgets",
			LastError:   "",
			Record: &record.RepoRecord{
				Identity:      testIdentity("widgets"),
				CloneURL:      "https://github.com/acme/widgets.git",
				DefaultBranch: "main",
				Description:   "widget factory",
				Visibility:    record.VisibilityPublic,
				UpdatedAt:     time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC),
				Size:          2048,
				Stars:         &stars,
				Forks:         &forks,
				Extra:         map[string]string{"language": "Go", "head_sha": "abc123"},
			},
		}
		require.NoError(t, store.Put(ctx, want))

		got, err := store.Get(ctx, testIdentity("widgets"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, *got)
	})

	t.Run("put_is_last_writer_wins", func(t *testing.T) {
		id := testIdentity("gadgets")
		require.NoError(t, store.Put(ctx, SyncState{Identity: id, LastRef: "old"}))
		require.NoError(t, store.Put(ctx, SyncState{Identity: id, LastRef: "new"}))

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "new", got.LastRef)
	})

	t.Run("rejects_zero_identity", func(t *testing.T) {
		require.Error(t, store.Put(ctx, SyncState{}))
	})
}

func TestStoreAllAndDelete(t *testing.T) {
	ctx := setupTestLogger(t)
	store := setupTestStore(t)

	for _, name := range []string{"b-repo", "a-repo", "c-repo"} {
		require.NoError(t, store.Put(ctx, SyncState{Identity: testIdentity(name)}))
	}

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a-repo", all[0].Identity.Name, "All is ordered by key")

	require.NoError(t, store.Delete(ctx, testIdentity("b-repo")))
	all, err = store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStoreDurableAcrossReopen(t *testing.T) {
	ctx := setupTestLogger(t)
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, SyncState{Identity: testIdentity("widgets"), LastRef: "abc123"}))
	require.NoError(t, store.Close())

	store2, err := Open(path)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.Get(ctx, testIdentity("widgets"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.LastRef)
}

func TestStoreConcurrentWritersDifferentIdentities(t *testing.T) {
	ctx := setupTestLogger(t)
	store := setupTestStore(t)

	var wg sync.WaitGroup
	names := []string{"one", "two", "three", "four", "five"}
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, store.Put(ctx, SyncState{Identity: testIdentity(name), LastRef: name}))
		}(name)
	}
	wg.Wait()

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(names))
}
