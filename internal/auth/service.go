package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

var (
	ErrUserExists         = fmt.Errorf("user already exists: %w", storage.ErrDuplicateKey)
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUsernameRequired   = errors.New("username is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrNoBackend          = fmt.Errorf("no storage backend is open: %w", storage.ErrConfiguration)
)

// Service handles registration, authentication and user management. It reads
// the live backend from source on every call.
type Service struct {
	source storage.Source
}

// NewService creates a new authentication service.
func NewService(source storage.Source) *Service {
	return &Service{source: source}
}

func (s *Service) backend() (storage.Backend, error) {
	if s.source == nil {
		return nil, ErrNoBackend
	}
	b := s.source.Backend()
	if b == nil {
		return nil, ErrNoBackend
	}
	return b, nil
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string, role entities.UserRole) (*entities.User, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := b.FindUserByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		ID:           storage.NewID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    storage.Now(),
	}
	if err := b.InsertUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrUserExists
		}
		log.Printf("Failed to create user %s: %v", username, err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate validates credentials and returns the user. Unknown users and
// wrong passwords fail the same way.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*entities.User, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	user, err := b.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if err := CheckPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrInvalidPassword) {
			log.Printf("Stored password hash for %s is unreadable: %v", user.Username, err)
		}
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(ctx context.Context, id string) (*entities.User, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	return b.FindUserByID(ctx, id)
}

// GetUserByUsername retrieves a user by their username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	return b.FindUserByUsername(ctx, strings.TrimSpace(username))
}

// ListUsers returns every user in registration order.
func (s *Service) ListUsers(ctx context.Context) ([]entities.User, error) {
	b, err := s.backend()
	if err != nil {
		return nil, err
	}
	return b.ListUsers(ctx)
}

// UsersByRole returns the users holding role.
func (s *Service) UsersByRole(ctx context.Context, role entities.UserRole) ([]entities.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]entities.User, 0, len(users))
	for _, u := range users {
		if u.Role == role {
			matching = append(matching, u)
		}
	}
	return matching, nil
}

// ChangePassword updates a user's password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	b, err := s.backend()
	if err != nil {
		return err
	}
	if newPassword == "" {
		return ErrPasswordRequired
	}
	user, err := b.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = newHash
	return b.UpdateUser(ctx, user)
}

// DeleteUser removes a user with their requests and loan history. It is
// refused while the user still holds a book.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	b, err := s.backend()
	if err != nil {
		return err
	}
	return b.Atomically(ctx, func(repo storage.Repository) error {
		user, err := repo.FindUserByID(ctx, userID)
		if err != nil {
			return err
		}
		records, err := repo.FindRecordsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, r := range records {
			if r.IsOutstanding() {
				return fmt.Errorf("user %q still holds a book: %w", user.Username, storage.ErrInvalidState)
			}
		}
		return repo.DeleteUser(ctx, userID)
	})
}
