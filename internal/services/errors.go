package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/mrlokans/librarian/internal/storage"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDuplicateRequest = fmt.Errorf("request already pending: %w", storage.ErrInvalidState)
	ErrNoActiveLoan     = fmt.Errorf("no active loan: %w", storage.ErrInvalidState)
	ErrNoBackend        = fmt.Errorf("no storage backend is open: %w", storage.ErrConfiguration)
)

// logFailure logs errors that come from the store itself. Rule violations
// and lookup misses are the caller's business and stay quiet.
func logFailure(op string, err error) {
	if err != nil && storage.IsStorageFailure(err) {
		log.Printf("%s failed: %v", op, err)
	}
}

func backendOf(source storage.Source) (storage.Backend, error) {
	if source == nil {
		return nil, ErrNoBackend
	}
	b := source.Backend()
	if b == nil {
		return nil, ErrNoBackend
	}
	return b, nil
}
