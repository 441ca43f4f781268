package filestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

const (
	usersFile    = "users.json"
	booksFile    = "books.json"
	recordsFile  = "borrowing_records.json"
	requestsFile = "borrowing_requests.json"
)

// view implements storage.Repository over the collection files without any
// locking. Store serialises access to it.
type view struct {
	users    collection[entities.User]
	books    collection[entities.Book]
	records  collection[entities.BorrowingRecord]
	requests collection[entities.BorrowingRequest]
}

var _ storage.Repository = view{}

func newView(dir string) view {
	return view{
		users:    collection[entities.User]{dir: dir, name: usersFile},
		books:    collection[entities.Book]{dir: dir, name: booksFile},
		records:  collection[entities.BorrowingRecord]{dir: dir, name: recordsFile},
		requests: collection[entities.BorrowingRequest]{dir: dir, name: requestsFile},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, storage.ErrNotFound)
}

// Users

func (v view) ListUsers(ctx context.Context) ([]entities.User, error) {
	users, err := v.users.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(users, func(i, j int) bool {
		return createdBefore(users[i].CreatedAt, users[i].ID, users[j].CreatedAt, users[j].ID)
	})
	return users, nil
}

func (v view) FindUserByID(ctx context.Context, id string) (*entities.User, error) {
	users, err := v.users.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, notFound("user", id)
}

func (v view) FindUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	users, err := v.users.load()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, notFound("user", username)
}

func (v view) InsertUser(ctx context.Context, user *entities.User) error {
	users, err := v.users.load()
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.ID == user.ID {
			return fmt.Errorf("user id %q: %w", user.ID, storage.ErrDuplicateKey)
		}
		if u.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, storage.ErrDuplicateKey)
		}
	}
	return v.users.save(append(users, *user))
}

func (v view) UpdateUser(ctx context.Context, user *entities.User) error {
	users, err := v.users.load()
	if err != nil {
		return err
	}
	idx := -1
	for i, u := range users {
		if u.ID == user.ID {
			idx = i
			continue
		}
		if u.Username == user.Username {
			return fmt.Errorf("username %q: %w", user.Username, storage.ErrDuplicateKey)
		}
	}
	if idx < 0 {
		return notFound("user", user.ID)
	}
	updated := *user
	updated.CreatedAt = users[idx].CreatedAt
	users[idx] = updated
	return v.users.save(users)
}

// DeleteUser removes the user's records and requests before the user, and
// clears AdminID on requests the user answered.
func (v view) DeleteUser(ctx context.Context, id string) error {
	users, err := v.users.load()
	if err != nil {
		return err
	}
	kept := users[:0]
	for _, u := range users {
		if u.ID != id {
			kept = append(kept, u)
		}
	}
	if len(kept) == len(users) {
		return notFound("user", id)
	}

	records, err := v.records.load()
	if err != nil {
		return err
	}
	keptRecords := records[:0]
	for _, r := range records {
		if r.UserID != id {
			keptRecords = append(keptRecords, r)
		}
	}

	requests, err := v.requests.load()
	if err != nil {
		return err
	}
	keptRequests := requests[:0]
	for _, r := range requests {
		if r.UserID == id {
			continue
		}
		if r.AdminID != nil && *r.AdminID == id {
			r.AdminID = nil
		}
		keptRequests = append(keptRequests, r)
	}

	if err := v.records.save(keptRecords); err != nil {
		return err
	}
	if err := v.requests.save(keptRequests); err != nil {
		return err
	}
	return v.users.save(kept)
}

// Books

func (v view) ListBooks(ctx context.Context) ([]entities.Book, error) {
	books, err := v.books.load()
	if err != nil {
		return nil, err
	}
	sortBooks(books)
	return books, nil
}

func (v view) FindBookByID(ctx context.Context, id string) (*entities.Book, error) {
	books, err := v.books.load()
	if err != nil {
		return nil, err
	}
	for i := range books {
		if books[i].ID == id {
			return &books[i], nil
		}
	}
	return nil, notFound("book", id)
}

func (v view) FindBookByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	books, err := v.books.load()
	if err != nil {
		return nil, err
	}
	for i := range books {
		if books[i].ISBN != nil && *books[i].ISBN == isbn {
			return &books[i], nil
		}
	}
	return nil, notFound("book with isbn", isbn)
}

func (v view) SearchBooks(ctx context.Context, term string) ([]entities.Book, error) {
	books, err := v.books.load()
	if err != nil {
		return nil, err
	}
	matches := make([]entities.Book, 0, len(books))
	for i := range books {
		if books[i].Matches(term) {
			matches = append(matches, books[i])
		}
	}
	sortBooks(matches)
	return matches, nil
}

func (v view) InsertBook(ctx context.Context, book *entities.Book) error {
	books, err := v.books.load()
	if err != nil {
		return err
	}
	for _, b := range books {
		if b.ID == book.ID {
			return fmt.Errorf("book id %q: %w", book.ID, storage.ErrDuplicateKey)
		}
		if sameISBN(b.ISBN, book.ISBN) {
			return fmt.Errorf("isbn %q: %w", *book.ISBN, storage.ErrDuplicateKey)
		}
	}
	return v.books.save(append(books, *book))
}

func (v view) UpdateBook(ctx context.Context, book *entities.Book) error {
	books, err := v.books.load()
	if err != nil {
		return err
	}
	idx := -1
	for i, b := range books {
		if b.ID == book.ID {
			idx = i
			continue
		}
		if sameISBN(b.ISBN, book.ISBN) {
			return fmt.Errorf("isbn %q: %w", *book.ISBN, storage.ErrDuplicateKey)
		}
	}
	if idx < 0 {
		return notFound("book", book.ID)
	}
	updated := *book
	updated.CreatedAt = books[idx].CreatedAt
	books[idx] = updated
	return v.books.save(books)
}

func (v view) SetBookStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error {
	books, err := v.books.load()
	if err != nil {
		return err
	}
	for i := range books {
		if books[i].ID != id {
			continue
		}
		if books[i].Status != from {
			return fmt.Errorf("book %q is %s, not %s: %w", id, books[i].Status, from, storage.ErrInvalidState)
		}
		books[i].Status = to
		books[i].UpdatedAt = at
		return v.books.save(books)
	}
	return notFound("book", id)
}

// DeleteBook removes the book's records and requests before the book.
func (v view) DeleteBook(ctx context.Context, id string) error {
	books, err := v.books.load()
	if err != nil {
		return err
	}
	kept := books[:0]
	for _, b := range books {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	if len(kept) == len(books) {
		return notFound("book", id)
	}

	records, err := v.records.load()
	if err != nil {
		return err
	}
	keptRecords := records[:0]
	for _, r := range records {
		if r.BookID != id {
			keptRecords = append(keptRecords, r)
		}
	}

	requests, err := v.requests.load()
	if err != nil {
		return err
	}
	keptRequests := requests[:0]
	for _, r := range requests {
		if r.BookID != id {
			keptRequests = append(keptRequests, r)
		}
	}

	if err := v.records.save(keptRecords); err != nil {
		return err
	}
	if err := v.requests.save(keptRequests); err != nil {
		return err
	}
	return v.books.save(kept)
}

// Borrowing records

func (v view) ListRecords(ctx context.Context) ([]entities.BorrowingRecord, error) {
	return v.filterRecords(func(*entities.BorrowingRecord) bool { return true })
}

func (v view) FindRecordsByUser(ctx context.Context, userID string) ([]entities.BorrowingRecord, error) {
	return v.filterRecords(func(r *entities.BorrowingRecord) bool { return r.UserID == userID })
}

func (v view) FindActiveRecord(ctx context.Context, userID, bookID string) (*entities.BorrowingRecord, error) {
	records, err := v.filterRecords(func(r *entities.BorrowingRecord) bool {
		return r.UserID == userID && r.BookID == bookID && r.IsOutstanding()
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("active record for user %q and book %q: %w", userID, bookID, storage.ErrNotFound)
	}
	return &records[0], nil
}

func (v view) FindActiveRecordsByBook(ctx context.Context, bookID string) ([]entities.BorrowingRecord, error) {
	return v.filterRecords(func(r *entities.BorrowingRecord) bool {
		return r.BookID == bookID && r.IsOutstanding()
	})
}

func (v view) InsertRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	if err := v.checkReferences(record.UserID, record.BookID); err != nil {
		return err
	}
	records, err := v.records.load()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == record.ID {
			return fmt.Errorf("record id %q: %w", record.ID, storage.ErrDuplicateKey)
		}
	}
	return v.records.save(append(records, *record))
}

func (v view) UpdateRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	records, err := v.records.load()
	if err != nil {
		return err
	}
	for i := range records {
		if records[i].ID == record.ID {
			records[i] = *record
			return v.records.save(records)
		}
	}
	return notFound("record", record.ID)
}

func (v view) filterRecords(keep func(*entities.BorrowingRecord) bool) ([]entities.BorrowingRecord, error) {
	records, err := v.records.load()
	if err != nil {
		return nil, err
	}
	out := make([]entities.BorrowingRecord, 0, len(records))
	for i := range records {
		if keep(&records[i]) {
			out = append(out, records[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[i].BorrowedAt, out[i].ID, out[j].BorrowedAt, out[j].ID)
	})
	return out, nil
}

// Borrowing requests

func (v view) ListRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	return v.filterRequests(func(*entities.BorrowingRequest) bool { return true })
}

func (v view) FindPendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	return v.filterRequests(func(r *entities.BorrowingRequest) bool {
		return r.Status == entities.RequestStatusPending
	})
}

func (v view) FindPendingRequest(ctx context.Context, userID, bookID string) (*entities.BorrowingRequest, error) {
	requests, err := v.filterRequests(func(r *entities.BorrowingRequest) bool {
		return r.UserID == userID && r.BookID == bookID && r.Status == entities.RequestStatusPending
	})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("pending request for user %q and book %q: %w", userID, bookID, storage.ErrNotFound)
	}
	return &requests[0], nil
}

func (v view) FindRequestByID(ctx context.Context, id string) (*entities.BorrowingRequest, error) {
	requests, err := v.requests.load()
	if err != nil {
		return nil, err
	}
	for i := range requests {
		if requests[i].ID == id {
			return &requests[i], nil
		}
	}
	return nil, notFound("request", id)
}

func (v view) InsertRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	if err := v.checkReferences(request.UserID, request.BookID); err != nil {
		return err
	}
	requests, err := v.requests.load()
	if err != nil {
		return err
	}
	for _, r := range requests {
		if r.ID == request.ID {
			return fmt.Errorf("request id %q: %w", request.ID, storage.ErrDuplicateKey)
		}
	}
	return v.requests.save(append(requests, *request))
}

func (v view) UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	requests, err := v.requests.load()
	if err != nil {
		return err
	}
	for i := range requests {
		if requests[i].ID == request.ID {
			requests[i] = *request
			return v.requests.save(requests)
		}
	}
	return notFound("request", request.ID)
}

func (v view) DeleteRequest(ctx context.Context, id string) error {
	requests, err := v.requests.load()
	if err != nil {
		return err
	}
	kept := requests[:0]
	for _, r := range requests {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(requests) {
		return notFound("request", id)
	}
	return v.requests.save(kept)
}

func (v view) filterRequests(keep func(*entities.BorrowingRequest) bool) ([]entities.BorrowingRequest, error) {
	requests, err := v.requests.load()
	if err != nil {
		return nil, err
	}
	out := make([]entities.BorrowingRequest, 0, len(requests))
	for i := range requests {
		if keep(&requests[i]) {
			out = append(out, requests[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return createdBefore(out[i].RequestedAt, out[i].ID, out[j].RequestedAt, out[j].ID)
	})
	return out, nil
}

// checkReferences mirrors the foreign keys of the relational schema.
func (v view) checkReferences(userID, bookID string) error {
	if _, err := v.FindUserByID(context.Background(), userID); err != nil {
		return err
	}
	if _, err := v.FindBookByID(context.Background(), bookID); err != nil {
		return err
	}
	return nil
}

func sortBooks(books []entities.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		return createdBefore(books[i].CreatedAt, books[i].ID, books[j].CreatedAt, books[j].ID)
	})
}

func createdBefore(at1 time.Time, id1 string, at2 time.Time, id2 string) bool {
	if !at1.Equal(at2) {
		return at1.Before(at2)
	}
	return id1 < id2
}

func sameISBN(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
