package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
	"github.com/mrlokans/librarian/internal/storage/filestore"
)

// forEachBackend runs fn once against a fresh file backend and once against a
// fresh SQLite backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, b storage.Backend)) {
	t.Run("file", func(t *testing.T) {
		fn(t, newFileBackend(t))
	})
	t.Run("sqlite", func(t *testing.T) {
		db, err := database.NewDatabase(filepath.Join(t.TempDir(), "library.db"), database.Options{})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, db.Initialize(context.Background()))
		fn(t, db)
	})
}

func newFileBackend(t *testing.T) *filestore.Store {
	t.Helper()
	store := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

type fixture struct {
	backend  storage.Backend
	loans    *LoanService
	catalog  *CatalogService
	recorder *memoryRecorder
	reader   *entities.User
	other    *entities.User
	admin    *entities.User
}

func newFixture(t *testing.T, b storage.Backend, opts ...LoanOption) *fixture {
	t.Helper()
	ctx := context.Background()
	recorder := &memoryRecorder{}
	source := storage.StaticSource(b)

	f := &fixture{
		backend:  b,
		loans:    NewLoanService(source, append([]LoanOption{WithRecorder(recorder)}, opts...)...),
		catalog:  NewCatalogService(source, recorder),
		recorder: recorder,
		reader:   addUser(t, b, "reader", entities.UserRoleRegular, 0),
		other:    addUser(t, b, "other", entities.UserRoleRegular, time.Second),
		admin:    addUser(t, b, "librarian", entities.UserRoleAdmin, 2*time.Second),
	}
	_, err := f.catalog.AddBook(ctx, "1984", "George Orwell", 1949, isbn1984)
	require.NoError(t, err)
	return f
}

const isbn1984 = "978-0-452-28423-4"

func addUser(t *testing.T, b storage.Backend, username string, role entities.UserRole, offset time.Duration) *entities.User {
	t.Helper()
	user := &entities.User{
		ID:           storage.NewID(),
		Username:     username,
		PasswordHash: "digest:salt",
		Role:         role,
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset),
	}
	require.NoError(t, b.InsertUser(context.Background(), user))
	return user
}

func (f *fixture) book(t *testing.T, isbn string) *entities.Book {
	t.Helper()
	book, err := f.backend.FindBookByISBN(context.Background(), isbn)
	require.NoError(t, err)
	return book
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := f.loans.CheckInvariants(context.Background())
	require.NoError(t, err)
	require.True(t, report.OK(), "invariants violated: %+v", report)
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []entities.LoanEvent
}

func (r *memoryRecorder) RecordLoanEvent(event entities.LoanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRecorder) actions() []entities.LoanAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entities.LoanAction, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

var errDiskFull = errors.New("disk full")

// faultyBackend injects write failures into the repository handed to
// Atomically callbacks.
type faultyBackend struct {
	storage.Backend

	mu               sync.Mutex
	failInsertRecord bool
	// failUpdateRequestFrom fails the n-th and later UpdateRequest calls; 0 never fails.
	failUpdateRequestFrom int
	updateRequestCalls    int
	failSetAvailable      bool
}

func (f *faultyBackend) Atomically(ctx context.Context, fn func(repo storage.Repository) error) error {
	return f.Backend.Atomically(ctx, func(repo storage.Repository) error {
		return fn(&faultyRepo{Repository: repo, f: f})
	})
}

type faultyRepo struct {
	storage.Repository
	f *faultyBackend
}

func (r *faultyRepo) InsertRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	r.f.mu.Lock()
	fail := r.f.failInsertRecord
	r.f.mu.Unlock()
	if fail {
		return storage.IOError("insert record", errDiskFull)
	}
	return r.Repository.InsertRecord(ctx, record)
}

func (r *faultyRepo) UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	r.f.mu.Lock()
	r.f.updateRequestCalls++
	fail := r.f.failUpdateRequestFrom > 0 && r.f.updateRequestCalls >= r.f.failUpdateRequestFrom
	r.f.mu.Unlock()
	if fail {
		return storage.IOError("update request", errDiskFull)
	}
	return r.Repository.UpdateRequest(ctx, request)
}

func (r *faultyRepo) SetBookStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error {
	r.f.mu.Lock()
	fail := r.f.failSetAvailable && to == entities.BookStatusAvailable
	r.f.mu.Unlock()
	if fail {
		return storage.IOError("set book status", errDiskFull)
	}
	return r.Repository.SetBookStatus(ctx, id, from, to, at)
}
