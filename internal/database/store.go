package database

import (
	"context"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

var _ storage.Repository = store{}

func (s store) ListUsers(ctx context.Context) ([]entities.User, error) {
	users, err := s.users.GetAllUsers(ctx)
	return users, translateError("list users", err)
}

func (s store) FindUserByID(ctx context.Context, id string) (*entities.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, translateError("find user", err)
	}
	return user, nil
}

func (s store) FindUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, translateError("find user", err)
	}
	return user, nil
}

func (s store) InsertUser(ctx context.Context, user *entities.User) error {
	return translateError("insert user", s.users.CreateUser(ctx, user))
}

func (s store) UpdateUser(ctx context.Context, user *entities.User) error {
	return translateError("update user", s.users.UpdateUser(ctx, user))
}

func (s store) DeleteUser(ctx context.Context, id string) error {
	return translateError("delete user", s.users.DeleteUser(ctx, id))
}

func (s store) ListBooks(ctx context.Context) ([]entities.Book, error) {
	books, err := s.books.GetAllBooks(ctx)
	return books, translateError("list books", err)
}

func (s store) FindBookByID(ctx context.Context, id string) (*entities.Book, error) {
	book, err := s.books.GetBookByID(ctx, id)
	if err != nil {
		return nil, translateError("find book", err)
	}
	return book, nil
}

func (s store) FindBookByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	book, err := s.books.GetBookByISBN(ctx, isbn)
	if err != nil {
		return nil, translateError("find book", err)
	}
	return book, nil
}

func (s store) SearchBooks(ctx context.Context, term string) ([]entities.Book, error) {
	books, err := s.books.SearchBooks(ctx, term)
	return books, translateError("search books", err)
}

func (s store) InsertBook(ctx context.Context, book *entities.Book) error {
	return translateError("insert book", s.books.CreateBook(ctx, book))
}

func (s store) UpdateBook(ctx context.Context, book *entities.Book) error {
	return translateError("update book", s.books.UpdateBook(ctx, book))
}

func (s store) SetBookStatus(ctx context.Context, id string, from, to entities.BookStatus, at time.Time) error {
	return translateError("set book status", s.books.CompareAndSetStatus(ctx, id, from, to, at))
}

func (s store) DeleteBook(ctx context.Context, id string) error {
	return translateError("delete book", s.books.DeleteBook(ctx, id))
}

func (s store) ListRecords(ctx context.Context) ([]entities.BorrowingRecord, error) {
	records, err := s.records.GetAllRecords(ctx)
	return records, translateError("list records", err)
}

func (s store) FindRecordsByUser(ctx context.Context, userID string) ([]entities.BorrowingRecord, error) {
	records, err := s.records.GetRecordsForUser(ctx, userID)
	return records, translateError("find records", err)
}

func (s store) FindActiveRecord(ctx context.Context, userID, bookID string) (*entities.BorrowingRecord, error) {
	record, err := s.records.GetActiveRecord(ctx, userID, bookID)
	if err != nil {
		return nil, translateError("find active record", err)
	}
	return record, nil
}

func (s store) FindActiveRecordsByBook(ctx context.Context, bookID string) ([]entities.BorrowingRecord, error) {
	records, err := s.records.GetActiveRecordsForBook(ctx, bookID)
	return records, translateError("find active records", err)
}

func (s store) InsertRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	return translateError("insert record", s.records.CreateRecord(ctx, record))
}

func (s store) UpdateRecord(ctx context.Context, record *entities.BorrowingRecord) error {
	return translateError("update record", s.records.UpdateRecord(ctx, record))
}

func (s store) ListRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	requests, err := s.requests.GetAllRequests(ctx)
	return requests, translateError("list requests", err)
}

func (s store) FindPendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	requests, err := s.requests.GetPendingRequests(ctx)
	return requests, translateError("find pending requests", err)
}

func (s store) FindPendingRequest(ctx context.Context, userID, bookID string) (*entities.BorrowingRequest, error) {
	request, err := s.requests.GetPendingRequest(ctx, userID, bookID)
	if err != nil {
		return nil, translateError("find pending request", err)
	}
	return request, nil
}

func (s store) FindRequestByID(ctx context.Context, id string) (*entities.BorrowingRequest, error) {
	request, err := s.requests.GetRequestByID(ctx, id)
	if err != nil {
		return nil, translateError("find request", err)
	}
	return request, nil
}

func (s store) InsertRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	return translateError("insert request", s.requests.CreateRequest(ctx, request))
}

func (s store) UpdateRequest(ctx context.Context, request *entities.BorrowingRequest) error {
	return translateError("update request", s.requests.UpdateRequest(ctx, request))
}

func (s store) DeleteRequest(ctx context.Context, id string) error {
	return translateError("delete request", s.requests.DeleteRequest(ctx, id))
}
