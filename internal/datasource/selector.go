// Package datasource owns the live storage backend and switches it at run
// time.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
	"github.com/mrlokans/librarian/internal/storage/filestore"
)

// ErrSessionInvalid means the logged-in user could not be restored on the
// backend that was just switched to. The caller must authenticate again.
var ErrSessionInvalid = errors.New("session user could not be restored on the selected data source")

// Session tracks who is logged in. It holds only the user's ID so it stays
// meaningful across backends.
type Session struct {
	UserID string
}

// LoggedIn reports whether the session carries a user.
func (s *Session) LoggedIn() bool {
	return s != nil && s.UserID != ""
}

// Clear logs the session out.
func (s *Session) Clear() {
	if s != nil {
		s.UserID = ""
	}
}

// Selector builds backends from configuration and hands out the live one.
// It implements storage.Source.
type Selector struct {
	mu   sync.RWMutex
	live storage.Backend

	storage  config.Storage
	database config.Database
}

// NewSelector creates a selector with no live backend. Call Open before use.
func NewSelector(storageCfg config.Storage, databaseCfg config.Database) *Selector {
	return &Selector{
		storage:  storageCfg,
		database: databaseCfg,
	}
}

// Open builds the configured backend and makes it live.
func (s *Selector) Open(ctx context.Context) error {
	kind, err := storage.ParseKind(s.storage.Kind)
	if err != nil {
		return err
	}
	b, err := s.build(ctx, kind)
	if err != nil {
		return err
	}
	s.replace(b)
	log.Printf("Using %s data source", kind)
	return nil
}

// Backend returns the live backend, or nil before Open.
func (s *Selector) Backend() storage.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Kind returns the kind of the live backend, or "" before Open.
func (s *Selector) Kind() storage.Kind {
	b := s.Backend()
	if b == nil {
		return ""
	}
	return b.Kind()
}

// Switch builds and validates a backend of kind, swaps it in and closes the
// previous one. If the build fails the previous backend stays live.
//
// When session carries a user, that user is looked up by ID on the new
// backend and returned. If the lookup fails for any reason the session is
// cleared and an error wrapping ErrSessionInvalid is returned; the switch
// itself still stands.
func (s *Selector) Switch(ctx context.Context, kind storage.Kind, session *Session) (*entities.User, error) {
	b, err := s.build(ctx, kind)
	if err != nil {
		return nil, err
	}
	s.replace(b)
	log.Printf("Switched data source to %s", kind)

	if !session.LoggedIn() {
		return nil, nil
	}
	user, err := b.FindUserByID(ctx, session.UserID)
	if err != nil {
		session.Clear()
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		log.Printf("Failed to restore session after switching to %s: %v", kind, err)
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}
	return user, nil
}

// Close releases the live backend.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return nil
	}
	err := s.live.Close()
	s.live = nil
	return err
}

func (s *Selector) replace(b storage.Backend) {
	s.mu.Lock()
	previous := s.live
	s.live = b
	s.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Printf("Failed to close previous data source: %v", err)
		}
	}
}

// build constructs a backend of kind, checks that it is reachable and makes
// sure its schema exists. Existing data is kept.
func (s *Selector) build(ctx context.Context, kind storage.Kind) (storage.Backend, error) {
	var b storage.Backend
	switch kind {
	case storage.KindFile:
		if s.storage.DataDir == "" {
			return nil, fmt.Errorf("data directory is not set: %w", storage.ErrConfiguration)
		}
		b = filestore.New(s.storage.DataDir)
	case storage.KindRelational:
		db, err := database.NewDatabase(s.database.DSN, database.Options{LogSQL: s.database.LogSQL})
		if err != nil {
			return nil, err
		}
		b = db
	default:
		return nil, fmt.Errorf("unknown data source %q: %w", kind, storage.ErrConfiguration)
	}

	if err := b.TestConnection(ctx); err != nil {
		b.Close()
		if !errors.Is(err, storage.ErrConnection) {
			err = fmt.Errorf("%w: %w", storage.ErrConnection, err)
		}
		return nil, err
	}
	if err := b.Initialize(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialize %s data source: %w", kind, err)
	}
	return b, nil
}
