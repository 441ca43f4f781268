// Package books provides database operations for the book catalog.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetBookByISBN(ctx, "978-0-452-28423-4")
package books

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// ErrStatusMismatch is returned by CompareAndSetStatus when the book exists
// but is not in the expected status.
var ErrStatusMismatch = errors.New("book status mismatch")

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetAllBooks returns the whole catalog ordered by creation time.
func (r *Repository) GetAllBooks(ctx context.Context) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&books).Error
	return books, err
}

// GetBooksByStatus returns the books currently in status.
func (r *Repository) GetBooksByStatus(ctx context.Context, status entities.BookStatus) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC, id ASC").Find(&books).Error
	return books, err
}

// GetBookByID retrieves a book by its ID.
func (r *Repository) GetBookByID(ctx context.Context, id string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBookByISBN retrieves a book by its ISBN.
func (r *Repository) GetBookByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// SearchBooks matches query against title, author and ISBN (case-insensitive partial match).
// Matching runs in Go with Book.Matches because SQLite's LOWER and LIKE only
// fold ASCII; the file backend matches the same way.
func (r *Repository) SearchBooks(ctx context.Context, query string) ([]entities.Book, error) {
	books, err := r.GetAllBooks(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]entities.Book, 0, len(books))
	for i := range books {
		if books[i].Matches(query) {
			matched = append(matched, books[i])
		}
	}
	return matched, nil
}

// CreateBook inserts book. The partial unique index rejects duplicate ISBNs.
func (r *Repository) CreateBook(ctx context.Context, book *entities.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// UpdateBook rewrites the catalog columns of an existing book, status included.
func (r *Repository) UpdateBook(ctx context.Context, book *entities.Book) error {
	result := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ?", book.ID).
		Updates(map[string]any{
			"title":            book.Title,
			"author":           book.Author,
			"publication_year": book.PublicationYear,
			"isbn":             book.ISBN,
			"status":           book.Status,
			"updated_at":       book.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CompareAndSetStatus moves the book from one status to another with a single
// conditional UPDATE, so two concurrent callers cannot both win.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&entities.Book{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": at})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Book{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrStatusMismatch
}

// DeleteBook removes a book together with its loan history and requests.
func (r *Repository) DeleteBook(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&entities.BorrowingRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("book_id = ?", id).Delete(&entities.BorrowingRequest{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&entities.Book{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
