// Package filestore is the flat-file storage backend. Each entity kind lives in
// its own JSON array file inside one data directory:
//
//	users.json
//	books.json
//	borrowing_records.json
//	borrowing_requests.json
//
// Every operation loads the whole collection, mutates it in memory and
// rewrites the file. A single mutex serialises all operations on a Store, so
// one process may share a Store between goroutines. Several processes must not
// share a data directory.
package filestore

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

var _ storage.Backend = (*Store)(nil)

// Store is the file backend.
type Store struct {
	mu   sync.Mutex
	dir  string
	data view
}

// New returns a Store rooted at dir. Nothing is read or created until the
// first call.
func New(dir string) *Store {
	return &Store{
		dir:  dir,
		data: newView(dir),
	}
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Kind() storage.Kind {
	return storage.KindFile
}

// Initialize creates the data directory and any missing collection file.
// Existing files are left as they are.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return storage.IOError("create data directory", err)
	}
	if err := s.data.users.ensure(); err != nil {
		return err
	}
	if err := s.data.books.ensure(); err != nil {
		return err
	}
	if err := s.data.records.ensure(); err != nil {
		return err
	}
	if err := s.data.requests.ensure(); err != nil {
		return err
	}
	log.Printf("File storage initialized at %s", s.dir)
	return nil
}

// Seed replaces every collection: the books become catalog, the rest empty.
func (s *Store) Seed(ctx context.Context, catalog []entities.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return storage.IOError("create data directory", err)
	}
	if err := s.data.requests.save(nil); err != nil {
		return err
	}
	if err := s.data.records.save(nil); err != nil {
		return err
	}
	if err := s.data.users.save(nil); err != nil {
		return err
	}
	if err := s.data.books.save(append([]entities.Book(nil), catalog...)); err != nil {
		return err
	}
	log.Printf("Seeded %d books into %s", len(catalog), s.dir)
	return nil
}

// TestConnection checks that the data directory is writable.
func (s *Store) TestConnection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("%w: data directory %s is not writable: %w", storage.ErrConnection, s.dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}
	return nil
}

// Atomically holds the store lock while fn runs. fn must use the repository
// it is given; calling back into s deadlocks. Writes made by fn before it
// fails are kept.
func (s *Store) Atomically(ctx context.Context, fn func(repo storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListUsers(ctx)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindUserByID(ctx, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindUserByUsername(ctx, username)
}

func (s *Store) InsertUser(ctx context.Context, user *entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertUser(ctx, user)
}

func (s *Store) UpdateUser(ctx context.Context, user *entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateUser(ctx, user)
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteUser(ctx, id)
}

func (s *Store) ListBooks(ctx context.Context) ([]entities.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListBooks(ctx)
}

func (s *Store) FindBookByID(ctx context.Context, id string) (*entities.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindBookByID(ctx, id)
}

func (s *Store) FindBookByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindBookByISBN(ctx, isbn)
}

func (s *Store) SearchBooks(ctx context.Context, term string) ([]entities.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SearchBooks(ctx, term)
}

func (s *Store) InsertBook(ctx context.Context, book *entities.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertBook(ctx, book)
}

func (s *Store) UpdateBook(ctx context.Context, book *entities.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateBook(ctx, book)
}

func (s *Store) SetBookStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SetBookStatus(ctx, id, from, to, at)
}

func (s *Store) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteBook(ctx, id)
}

func (s *Store) ListRecords(ctx context.Context) ([]entities.BorrowingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRecords(ctx)
}

func (s *Store) FindRecordsByUser(ctx context.Context, userID string) ([]entities.BorrowingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindRecordsByUser(ctx, userID)
}

func (s *Store) FindActiveRecord(ctx context.Context, userID, bookID string) (*entities.BorrowingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindActiveRecord(ctx, userID, bookID)
}

func (s *Store) FindActiveRecordsByBook(ctx context.Context, bookID string) ([]entities.BorrowingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindActiveRecordsByBook(ctx, bookID)
}

func (s *Store) InsertRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertRecord(ctx, record)
}

func (s *Store) UpdateRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateRecord(ctx, record)
}

func (s *Store) ListRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRequests(ctx)
}

func (s *Store) FindPendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPendingRequests(ctx)
}

func (s *Store) FindPendingRequest(ctx context.Context, userID, bookID string) (*entities.BorrowingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindPendingRequest(ctx, userID, bookID)
}

func (s *Store) FindRequestByID(ctx context.Context, id string) (*entities.BorrowingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FindRequestByID(ctx, id)
}

func (s *Store) InsertRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertRequest(ctx, request)
}

func (s *Store) UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateRequest(ctx, request)
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeleteRequest(ctx, id)
}
