package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

// BookUpdate carries the catalog fields an edit may change. Nil fields are
// left as they are. Status is owned by the loan workflow and never edited.
type BookUpdate struct {
	Title           *string
	Author          *string
	PublicationYear *int
	// ISBN set to an empty string removes the ISBN.
	ISBN *string
}

// CatalogService handles book CRUD and search.
type CatalogService struct {
	source   storage.Source
	recorder LoanRecorder
	now      func() time.Time
}

// NewCatalogService creates a new CatalogService. recorder may be nil.
func NewCatalogService(source storage.Source, recorder LoanRecorder) *CatalogService {
	return &CatalogService{
		source:   source,
		recorder: recorder,
		now:      storage.Now,
	}
}

// AddBook adds an Available book to the catalog.
func (s *CatalogService) AddBook(ctx context.Context, title, author string, year int, isbn string) (*entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return nil, fmt.Errorf("title and author are required: %w", ErrInvalidInput)
	}

	now := s.now()
	book := &entities.Book{
		ID:              storage.NewID(),
		Title:           title,
		Author:          author,
		PublicationYear: year,
		ISBN:            storage.NormalizeISBN(isbn),
		Status:          entities.BookStatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := b.InsertBook(ctx, book); err != nil {
		logFailure("add book", err)
		return nil, err
	}
	return book, nil
}

// UpdateBook edits the catalog fields of the book with isbn.
func (s *CatalogService) UpdateBook(ctx context.Context, isbn string, update BookUpdate) (*entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	isbn, err = requireISBN(isbn)
	if err != nil {
		return nil, err
	}

	var updated entities.Book
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		book, err := repo.FindBookByISBN(ctx, isbn)
		if err != nil {
			return fmt.Errorf("book %q: %w", isbn, err)
		}
		updated = *book
		if update.Title != nil {
			if strings.TrimSpace(*update.Title) == "" {
				return fmt.Errorf("title cannot be empty: %w", ErrInvalidInput)
			}
			updated.Title = strings.TrimSpace(*update.Title)
		}
		if update.Author != nil {
			if strings.TrimSpace(*update.Author) == "" {
				return fmt.Errorf("author cannot be empty: %w", ErrInvalidInput)
			}
			updated.Author = strings.TrimSpace(*update.Author)
		}
		if update.PublicationYear != nil {
			updated.PublicationYear = *update.PublicationYear
		}
		if update.ISBN != nil {
			updated.ISBN = storage.NormalizeISBN(*update.ISBN)
		}
		updated.UpdatedAt = s.now()
		return repo.UpdateBook(ctx, &updated)
	})
	if err != nil {
		logFailure("update book", err)
		return nil, err
	}
	return &updated, nil
}

// DeleteBook removes a book and its history. It is refused while the book is
// Borrowed or any active record still points at it.
func (s *CatalogService) DeleteBook(ctx context.Context, isbn string) error {
	b, err := backendOf(s.source)
	if err != nil {
		return err
	}
	isbn, err = requireISBN(isbn)
	if err != nil {
		return err
	}

	var deleted *entities.Book
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		book, err := repo.FindBookByISBN(ctx, isbn)
		if err != nil {
			return fmt.Errorf("book %q: %w", isbn, err)
		}
		if book.Status == entities.BookStatusBorrowed {
			return fmt.Errorf("book %q is on loan: %w", isbn, storage.ErrInvalidState)
		}
		active, err := repo.FindActiveRecordsByBook(ctx, book.ID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("book %q has %d active records: %w", isbn, len(active), storage.ErrInvalidState)
		}
		deleted = book
		return repo.DeleteBook(ctx, book.ID)
	})
	if err != nil {
		logFailure("delete book", err)
		return err
	}

	if s.recorder != nil {
		event := entities.LoanEvent{
			Action:    entities.LoanActionBookDelete,
			BookID:    deleted.ID,
			Status:    entities.AuditStatusSuccess,
			Detail:    deleted.Title,
			CreatedAt: s.now(),
		}
		if err := s.recorder.RecordLoanEvent(event); err != nil {
			logFailure("record book deletion", err)
		}
	}
	return nil
}

// GetBookByISBN looks a book up by ISBN.
func (s *CatalogService) GetBookByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	book, err := b.FindBookByISBN(ctx, strings.TrimSpace(isbn))
	if err != nil {
		logFailure("get book", err)
		return nil, err
	}
	return book, nil
}

// GetBookByID looks a book up by identity.
func (s *CatalogService) GetBookByID(ctx context.Context, id string) (*entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	book, err := b.FindBookByID(ctx, id)
	if err != nil {
		logFailure("get book", err)
		return nil, err
	}
	return book, nil
}

// ListBooks returns the whole catalog.
func (s *CatalogService) ListBooks(ctx context.Context) ([]entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	books, err := b.ListBooks(ctx)
	if err != nil {
		logFailure("list books", err)
		return nil, err
	}
	return books, nil
}

// SearchBooks matches term against title, author and ISBN ignoring case. An
// empty term returns the whole catalog.
func (s *CatalogService) SearchBooks(ctx context.Context, term string) ([]entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	books, err := b.SearchBooks(ctx, strings.TrimSpace(term))
	if err != nil {
		logFailure("search books", err)
		return nil, err
	}
	return books, nil
}
