// Package records provides database operations for borrowing records.
//
// A record is outstanding while its status is Active. Legacy rows carrying the
// Overdue status are treated the same way.
package records

import (
	"context"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

var outstandingStatuses = []entities.BorrowingStatus{
	entities.BorrowingStatusActive,
	entities.BorrowingStatusOverdue,
}

// Repository handles all borrowing record database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new records repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ordered(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Order("borrowed_at ASC, id ASC")
}

// GetAllRecords returns the full loan history.
func (r *Repository) GetAllRecords(ctx context.Context) ([]entities.BorrowingRecord, error) {
	var records []entities.BorrowingRecord
	err := r.ordered(ctx).Find(&records).Error
	return records, err
}

// GetRecordsForUser returns every loan of a user, returned ones included.
func (r *Repository) GetRecordsForUser(ctx context.Context, userID string) ([]entities.BorrowingRecord, error) {
	var records []entities.BorrowingRecord
	err := r.ordered(ctx).Where("user_id = ?", userID).Find(&records).Error
	return records, err
}

// GetActiveRecord returns the outstanding loan of bookID held by userID.
func (r *Repository) GetActiveRecord(ctx context.Context, userID, bookID string) (*entities.BorrowingRecord, error) {
	var record entities.BorrowingRecord
	err := r.ordered(ctx).
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, outstandingStatuses).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetActiveRecordsForBook returns every outstanding loan of a book. More than
// one row means the catalog is inconsistent.
func (r *Repository) GetActiveRecordsForBook(ctx context.Context, bookID string) ([]entities.BorrowingRecord, error) {
	var records []entities.BorrowingRecord
	err := r.ordered(ctx).
		Where("book_id = ? AND status IN ?", bookID, outstandingStatuses).
		Find(&records).Error
	return records, err
}

// CreateRecord inserts a new borrowing record.
func (r *Repository) CreateRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	return r.db.WithContext(ctx).Omit("User", "Book").Create(record).Error
}

// UpdateRecord rewrites the mutable columns of a record.
func (r *Repository) UpdateRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	result := r.db.WithContext(ctx).Model(&entities.BorrowingRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"user_id":     record.UserID,
			"book_id":     record.BookID,
			"borrowed_at": record.BorrowedAt,
			"due_at":      record.DueAt,
			"returned_at": record.ReturnedAt,
			"status":      record.Status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
