package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/librarian/internal/entities"
)

var sampleCatalog = []struct {
	Title  string
	Author string
	Year   int
	ISBN   string
}{
	{"1984", "George Orwell", 1949, "978-0-452-28423-4"},
	{"To Kill a Mockingbird", "Harper Lee", 1960, "978-0-06-112008-4"},
	{"The Great Gatsby", "F. Scott Fitzgerald", 1925, "978-0-7432-7356-5"},
	{"Pride and Prejudice", "Jane Austen", 1813, "978-0-14-143951-8"},
	{"The Catcher in the Rye", "J.D. Salinger", 1951, "978-0-316-76948-0"},
	{"Brave New World", "Aldous Huxley", 1932, "978-0-06-085052-4"},
	{"The Hobbit", "J.R.R. Tolkien", 1937, "978-0-547-92822-7"},
	{"Fahrenheit 451", "Ray Bradbury", 1953, "978-1-4516-7331-9"},
}

// SampleCatalog returns fresh Available copies of the demo catalog used by Seed.
func SampleCatalog() []entities.Book {
	now := Now()
	books := make([]entities.Book, 0, len(sampleCatalog))
	for i, s := range sampleCatalog {
		// Distinct timestamps keep the listing order stable across backends.
		created := now.Add(time.Duration(i) * time.Microsecond)
		books = append(books, entities.Book{
			ID:              NewID(),
			Title:           s.Title,
			Author:          s.Author,
			PublicationYear: s.Year,
			ISBN:            NormalizeISBN(s.ISBN),
			Status:          entities.BookStatusAvailable,
			CreatedAt:       created,
			UpdatedAt:       created,
		})
	}
	return books
}

// NewID returns a new entity identity.
func NewID() string {
	return uuid.NewString()
}

// Now returns the current time in the precision every backend can store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NormalizeISBN trims isbn and maps blank values to nil so that books without
// an ISBN never collide on the unique index.
func NormalizeISBN(isbn string) *string {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil
	}
	return &isbn
}
