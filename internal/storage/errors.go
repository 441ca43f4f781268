package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrInvalidState  = errors.New("invalid state")
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrStorageIO     = errors.New("storage i/o error")
)

// IOError wraps err so that it matches ErrStorageIO while keeping the cause.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageIO, err)
}

// IsStorageFailure reports whether err came from the underlying store rather
// than from a lookup miss or a rule violation.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrStorageIO) || errors.Is(err, ErrConnection)
}
