// Package storage defines the repository contract shared by the file and
// relational backends, the error taxonomy they report through, and a few
// helpers both of them need.
//
// # Backends
//
//	storage/filestore   # JSON collections rewritten in full on every mutation
//	database/           # gorm over SQLite or PostgreSQL
//
// Both are checked by the same suite in storage/storagetest, so either can be
// swapped in for the other without the services noticing.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
)

// Kind identifies a backend implementation.
type Kind string

const (
	KindFile       Kind = "file"
	KindRelational Kind = "relational"
)

// ParseKind maps a configured data source name to a Kind. Besides the kind
// names it accepts "json" for the file backend and "sqlite", "postgres" and
// "postgresql" for the relational one.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "file", "json":
		return KindFile, nil
	case "relational", "sqlite", "postgres", "postgresql":
		return KindRelational, nil
	}
	return "", fmt.Errorf("unknown data source %q: %w", name, ErrConfiguration)
}

// RollsBack reports whether a failed Atomically call undoes the writes made
// before the failure. File backend writes stay, so callers compensate.
func (k Kind) RollsBack() bool {
	return k == KindRelational
}

// Repository is the data access contract used by the services.
//
// Insert methods fail with ErrDuplicateKey on a uniqueness collision and never
// overwrite. Update and Delete methods fail with ErrNotFound for unknown ids
// and never create. Every slice returned is a snapshot owned by the caller,
// ordered by creation time then id.
type Repository interface {
	ListUsers(ctx context.Context) ([]entities.User, error)
	FindUserByID(ctx context.Context, id string) (*entities.User, error)
	FindUserByUsername(ctx context.Context, username string) (*entities.User, error)
	InsertUser(ctx context.Context, user *entities.User) error
	UpdateUser(ctx context.Context, user *entities.User) error
	DeleteUser(ctx context.Context, id string) error

	ListBooks(ctx context.Context) ([]entities.Book, error)
	FindBookByID(ctx context.Context, id string) (*entities.Book, error)
	FindBookByISBN(ctx context.Context, isbn string) (*entities.Book, error)
	SearchBooks(ctx context.Context, term string) ([]entities.Book, error)
	InsertBook(ctx context.Context, book *entities.Book) error
	UpdateBook(ctx context.Context, book *entities.Book) error
	// SetBookStatus moves a book from one status to another. It fails with
	// ErrInvalidState when the stored status is not from.
	SetBookStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error
	DeleteBook(ctx context.Context, id string) error

	ListRecords(ctx context.Context) ([]entities.BorrowingRecord, error)
	FindRecordsByUser(ctx context.Context, userID string) ([]entities.BorrowingRecord, error)
	FindActiveRecord(ctx context.Context, userID, bookID string) (*entities.BorrowingRecord, error)
	FindActiveRecordsByBook(ctx context.Context, bookID string) ([]entities.BorrowingRecord, error)
	InsertRecord(ctx context.Context, record *entities.BorrowingRecord) error
	UpdateRecord(ctx context.Context, record *entities.BorrowingRecord) error

	ListRequests(ctx context.Context) ([]entities.BorrowingRequest, error)
	FindPendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error)
	FindPendingRequest(ctx context.Context, userID, bookID string) (*entities.BorrowingRequest, error)
	FindRequestByID(ctx context.Context, id string) (*entities.BorrowingRequest, error)
	InsertRequest(ctx context.Context, request *entities.BorrowingRequest) error
	UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error
	DeleteRequest(ctx context.Context, id string) error
}

// Backend is a Repository together with its lifecycle.
type Backend interface {
	Repository

	Kind() Kind

	// Initialize prepares files or schema without touching existing data.
	Initialize(ctx context.Context) error

	// Seed wipes every collection and loads catalog as the only data.
	// It must only be run on operator request.
	Seed(ctx context.Context, catalog []entities.Book) error

	// TestConnection is the liveness probe run before a backend is put in use.
	TestConnection(ctx context.Context) error

	// Atomically runs fn with no other operation on this backend interleaving.
	// The relational backend runs fn in a transaction; the file backend holds
	// its lock while fn runs.
	Atomically(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

// Source hands out the backend that is live at the time of the call.
type Source interface {
	Backend() Backend
}

type staticSource struct {
	backend Backend
}

func (s staticSource) Backend() Backend { return s.backend }

// StaticSource wraps a fixed backend, for callers that never switch.
func StaticSource(b Backend) Source {
	return staticSource{backend: b}
}
