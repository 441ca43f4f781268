// Package users provides database operations for user accounts.
//
// Methods return gorm errors untranslated; the database package maps them onto
// the storage error taxonomy. Lookups that miss return gorm.ErrRecordNotFound,
// as do updates and deletes that match no row.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByUsername(ctx, "alice")
package users

import (
	"context"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetAllUsers returns every user ordered by creation time.
func (r *Repository) GetAllUsers(ctx context.Context) ([]entities.User, error) {
	var users []entities.User
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error
	return users, err
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username. The match is case-sensitive.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	var user entities.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts user. The unique index on username rejects duplicates.
func (r *Repository) CreateUser(ctx context.Context, user *entities.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// UpdateUser rewrites the mutable columns of an existing user.
func (r *Repository) UpdateUser(ctx context.Context, user *entities.User) error {
	result := r.db.WithContext(ctx).Model(&entities.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"username":      user.Username,
			"password_hash": user.PasswordHash,
			"role":          user.Role,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteUser removes a user with their loans and requests, and detaches them
// from requests they answered as admin.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&entities.BorrowingRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&entities.BorrowingRequest{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&entities.BorrowingRequest{}).
			Where("admin_id = ?", id).
			Update("admin_id", nil).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&entities.User{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
