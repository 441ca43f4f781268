package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
	"github.com/mrlokans/librarian/internal/storage/storagetest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func TestStore_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return setupTestStore(t)
	})
}

func TestStore_InitializeCreatesEmptyCollections(t *testing.T) {
	store := setupTestStore(t)

	for _, name := range []string{usersFile, booksFile, recordsFile, requestsFile} {
		data, err := os.ReadFile(filepath.Join(store.Dir(), name))
		require.NoError(t, err, name)
		assert.JSONEq(t, "[]", string(data), name)
	}
}

func TestStore_MissingFilesReadAsEmpty(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "never-initialized"))

	books, err := store.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)

	_, err = store.FindUserByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CorruptFileIsAnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	path := filepath.Join(store.Dir(), booksFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := store.ListBooks(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageIO)

	err = store.InsertBook(ctx, storagetest.NewBook("Dune", "1", 0))
	assert.ErrorIs(t, err, storage.ErrStorageIO)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "a corrupt collection must never be overwritten")
}

func TestStore_WritesIndentedArrays(t *testing.T) {
	store := setupTestStore(t)
	book := storagetest.NewBook("Dune", "978-0-441-17271-9", 0)
	require.NoError(t, store.InsertBook(context.Background(), book))

	data, err := os.ReadFile(filepath.Join(store.Dir(), booksFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {")

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, book.ID, raw[0]["id"])
	assert.Equal(t, "978-0-441-17271-9", raw[0]["isbn"])
	assert.Equal(t, "Available", raw[0]["status"])

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp_", "temp files are renamed or removed")
	}
}

func TestStore_DataSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	ctx := context.Background()

	first := New(dir)
	require.NoError(t, first.Initialize(ctx))
	user := storagetest.NewUser("alice", entities.UserRoleAdmin, 0)
	require.NoError(t, first.InsertUser(ctx, user))
	require.NoError(t, first.Close())

	second := New(dir)
	require.NoError(t, second.Initialize(ctx))
	got, err := second.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, user.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_ConcurrentStatusFlipHasOneWinner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	book := storagetest.NewBook("Dune", "1", 0)
	require.NoError(t, store.InsertBook(ctx, book))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, storagetest.Base)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrInvalidState)
	}
	assert.Equal(t, 1, wins)
}

func TestStore_TestConnectionFailsOnUnwritableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := New(filepath.Join(blocker, "data"))
	err := store.TestConnection(context.Background())
	assert.ErrorIs(t, err, storage.ErrConnection)
}
