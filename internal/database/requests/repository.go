// Package requests provides database operations for borrowing requests.
package requests

import (
	"context"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// Repository handles all borrowing request database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new requests repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ordered(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Order("requested_at ASC, id ASC")
}

// GetAllRequests returns every request regardless of status.
func (r *Repository) GetAllRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	var requests []entities.BorrowingRequest
	err := r.ordered(ctx).Find(&requests).Error
	return requests, err
}

// GetPendingRequests returns the requests waiting for an admin decision.
func (r *Repository) GetPendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	var requests []entities.BorrowingRequest
	err := r.ordered(ctx).Where("status = ?", entities.RequestStatusPending).Find(&requests).Error
	return requests, err
}

// GetPendingRequest returns the pending request of userID for bookID.
func (r *Repository) GetPendingRequest(ctx context.Context, userID, bookID string) (*entities.BorrowingRequest, error) {
	var request entities.BorrowingRequest
	err := r.ordered(ctx).
		Where("user_id = ? AND book_id = ? AND status = ?", userID, bookID, entities.RequestStatusPending).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetRequestByID retrieves a request by ID.
func (r *Repository) GetRequestByID(ctx context.Context, id string) (*entities.BorrowingRequest, error) {
	var request entities.BorrowingRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// CreateRequest inserts a new request.
func (r *Repository) CreateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	return r.db.WithContext(ctx).Omit("User", "Book", "Admin").Create(request).Error
}

// UpdateRequest rewrites the mutable columns of a request.
func (r *Repository) UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	result := r.db.WithContext(ctx).Model(&entities.BorrowingRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]any{
			"user_id":      request.UserID,
			"book_id":      request.BookID,
			"requested_at": request.RequestedAt,
			"status":       request.Status,
			"responded_at": request.RespondedAt,
			"admin_id":     request.AdminID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteRequest removes a request.
func (r *Repository) DeleteRequest(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entities.BorrowingRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
