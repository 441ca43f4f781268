// Package storagetest holds the behavioural suite every storage.Backend has to
// pass. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

// Factory returns a fresh, initialised and empty backend. Cleanup is the
// factory's job (t.Cleanup).
type Factory func(t *testing.T) storage.Backend

// Base is the first timestamp handed out by the fixtures.
var Base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes the contract suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("users", func(t *testing.T) { testUsers(t, newBackend(t)) })
	t.Run("books", func(t *testing.T) { testBooks(t, newBackend(t)) })
	t.Run("book status", func(t *testing.T) { testSetBookStatus(t, newBackend(t)) })
	t.Run("records", func(t *testing.T) { testRecords(t, newBackend(t)) })
	t.Run("requests", func(t *testing.T) { testRequests(t, newBackend(t)) })
	t.Run("delete book cascades", func(t *testing.T) { testDeleteBookCascade(t, newBackend(t)) })
	t.Run("delete user cascades", func(t *testing.T) { testDeleteUserCascade(t, newBackend(t)) })
	t.Run("snapshots are independent", func(t *testing.T) { testSnapshots(t, newBackend(t)) })
	t.Run("atomically", func(t *testing.T) { testAtomically(t, newBackend(t)) })
	t.Run("seed", func(t *testing.T) { testSeed(t, newBackend(t)) })
	t.Run("initialize keeps data", func(t *testing.T) { testInitializeKeepsData(t, newBackend(t)) })
}

// NewUser returns an unsaved user created offset after Base.
func NewUser(username string, role entities.UserRole, offset time.Duration) *entities.User {
	return &entities.User{
		ID:           storage.NewID(),
		Username:     username,
		PasswordHash: "digest:salt",
		Role:         role,
		CreatedAt:    Base.Add(offset),
	}
}

// NewBook returns an unsaved Available book created offset after Base.
func NewBook(title, isbn string, offset time.Duration) *entities.Book {
	at := Base.Add(offset)
	return &entities.Book{
		ID:              storage.NewID(),
		Title:           title,
		Author:          "Author of " + title,
		PublicationYear: 1950,
		ISBN:            storage.NormalizeISBN(isbn),
		Status:          entities.BookStatusAvailable,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

// NewRecord returns an unsaved Active record borrowed offset after Base.
func NewRecord(userID, bookID string, offset time.Duration) *entities.BorrowingRecord {
	at := Base.Add(offset)
	return &entities.BorrowingRecord{
		ID:         storage.NewID(),
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: at,
		DueAt:      at.Add(entities.DefaultLoanPeriod),
		Status:     entities.BorrowingStatusActive,
	}
}

// NewRequest returns an unsaved Pending request made offset after Base.
func NewRequest(userID, bookID string, offset time.Duration) *entities.BorrowingRequest {
	return &entities.BorrowingRequest{
		ID:          storage.NewID(),
		UserID:      userID,
		BookID:      bookID,
		RequestedAt: Base.Add(offset),
		Status:      entities.RequestStatusPending,
	}
}

func sameTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func testUsers(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	bob := NewUser("bob", entities.UserRoleRegular, 2*time.Second)
	alice := NewUser("alice", entities.UserRoleAdmin, time.Second)
	require.NoError(t, b.InsertUser(ctx, bob))
	require.NoError(t, b.InsertUser(ctx, alice))

	t.Run("find by id and username", func(t *testing.T) {
		got, err := b.FindUserByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, entities.UserRoleAdmin, got.Role)
		assert.Equal(t, "digest:salt", got.PasswordHash)
		sameTime(t, alice.CreatedAt, got.CreatedAt)

		got, err = b.FindUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)
	})

	t.Run("username lookup is case-sensitive", func(t *testing.T) {
		_, err := b.FindUserByUsername(ctx, "Bob")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := b.FindUserByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		err := b.InsertUser(ctx, NewUser("bob", entities.UserRoleRegular, 3*time.Second))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		got, err := b.FindUserByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID, "existing user must not be overwritten")
	})

	t.Run("list is ordered by creation time", func(t *testing.T) {
		users, err := b.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "alice", users[0].Username)
		assert.Equal(t, "bob", users[1].Username)
	})

	t.Run("update", func(t *testing.T) {
		updated := *bob
		updated.PasswordHash = "new:hash"
		require.NoError(t, b.UpdateUser(ctx, &updated))

		got, err := b.FindUserByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, "new:hash", got.PasswordHash)
	})

	t.Run("update to a taken username is rejected", func(t *testing.T) {
		updated := *bob
		updated.Username = "alice"
		assert.ErrorIs(t, b.UpdateUser(ctx, &updated), storage.ErrDuplicateKey)
	})

	t.Run("update and delete of unknown ids never create", func(t *testing.T) {
		ghost := NewUser("ghost", entities.UserRoleRegular, 0)
		assert.ErrorIs(t, b.UpdateUser(ctx, ghost), storage.ErrNotFound)
		assert.ErrorIs(t, b.DeleteUser(ctx, ghost.ID), storage.ErrNotFound)

		_, err := b.FindUserByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.DeleteUser(ctx, bob.ID))
		_, err := b.FindUserByID(ctx, bob.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func testBooks(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	dune := NewBook("Dune", "978-0-441-17271-9", time.Second)
	emma := NewBook("Emma", "", 2*time.Second)
	ulysses := NewBook("Ulysses", "", 3*time.Second)
	for _, book := range []*entities.Book{ulysses, dune, emma} {
		require.NoError(t, b.InsertBook(ctx, book))
	}

	t.Run("books without isbn do not collide", func(t *testing.T) {
		books, err := b.ListBooks(ctx)
		require.NoError(t, err)
		require.Len(t, books, 3)
		assert.Equal(t, []string{"Dune", "Emma", "Ulysses"}, titles(books))
		assert.Nil(t, books[1].ISBN)
	})

	t.Run("find by isbn", func(t *testing.T) {
		got, err := b.FindBookByISBN(ctx, "978-0-441-17271-9")
		require.NoError(t, err)
		assert.Equal(t, dune.ID, got.ID)
		assert.Equal(t, entities.BookStatusAvailable, got.Status)
		assert.Equal(t, 1950, got.PublicationYear)
		sameTime(t, dune.CreatedAt, got.CreatedAt)
		sameTime(t, dune.UpdatedAt, got.UpdatedAt)

		_, err = b.FindBookByISBN(ctx, "000")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate isbn is rejected", func(t *testing.T) {
		err := b.InsertBook(ctx, NewBook("Dune Messiah", "978-0-441-17271-9", 4*time.Second))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		books, err := b.ListBooks(ctx)
		require.NoError(t, err)
		assert.Len(t, books, 3)
	})

	t.Run("search is case-insensitive over title author and isbn", func(t *testing.T) {
		found, err := b.SearchBooks(ctx, "dUNE")
		require.NoError(t, err)
		assert.Equal(t, []string{"Dune"}, titles(found))

		found, err = b.SearchBooks(ctx, "author of e")
		require.NoError(t, err)
		assert.Equal(t, []string{"Emma"}, titles(found))

		found, err = b.SearchBooks(ctx, "17271")
		require.NoError(t, err)
		assert.Equal(t, []string{"Dune"}, titles(found))

		found, err = b.SearchBooks(ctx, "")
		require.NoError(t, err)
		assert.Len(t, found, 3)

		found, err = b.SearchBooks(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("search folds non-ascii case", func(t *testing.T) {
		eloge := NewBook("Éloge de l'ombre", "", 5*time.Second)
		require.NoError(t, b.InsertBook(ctx, eloge))
		defer func() { require.NoError(t, b.DeleteBook(ctx, eloge.ID)) }()

		for _, term := range []string{"éloge", "ÉLOGE", "Éloge"} {
			found, err := b.SearchBooks(ctx, term)
			require.NoError(t, err)
			assert.Equal(t, []string{"Éloge de l'ombre"}, titles(found), term)
		}
	})

	t.Run("update", func(t *testing.T) {
		updated := *emma
		updated.Title = "Emma (annotated)"
		updated.ISBN = storage.NormalizeISBN("978-0-14-143958-7")
		updated.UpdatedAt = Base.Add(time.Hour)
		require.NoError(t, b.UpdateBook(ctx, &updated))

		got, err := b.FindBookByID(ctx, emma.ID)
		require.NoError(t, err)
		assert.Equal(t, "Emma (annotated)", got.Title)
		assert.Equal(t, "978-0-14-143958-7", got.ISBNValue())
		sameTime(t, emma.CreatedAt, got.CreatedAt)
	})

	t.Run("update to a taken isbn is rejected", func(t *testing.T) {
		updated := *ulysses
		updated.ISBN = storage.NormalizeISBN("978-0-441-17271-9")
		assert.ErrorIs(t, b.UpdateBook(ctx, &updated), storage.ErrDuplicateKey)
	})

	t.Run("unknown ids", func(t *testing.T) {
		ghost := NewBook("Ghost", "", 0)
		assert.ErrorIs(t, b.UpdateBook(ctx, ghost), storage.ErrNotFound)
		assert.ErrorIs(t, b.DeleteBook(ctx, ghost.ID), storage.ErrNotFound)
		_, err := b.FindBookByID(ctx, ghost.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.DeleteBook(ctx, ulysses.ID))
		books, err := b.ListBooks(ctx)
		require.NoError(t, err)
		assert.Len(t, books, 2)
	})
}

func testSetBookStatus(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	book := NewBook("Dune", "1", 0)
	require.NoError(t, b.InsertBook(ctx, book))

	at := Base.Add(time.Minute)
	require.NoError(t, b.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, at))

	got, err := b.FindBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BookStatusBorrowed, got.Status)
	sameTime(t, at, got.UpdatedAt)

	err = b.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, at)
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	err = b.SetBookStatus(ctx, "missing", entities.BookStatusAvailable, entities.BookStatusBorrowed, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testRecords(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	alice := NewUser("alice", entities.UserRoleRegular, 0)
	require.NoError(t, b.InsertUser(ctx, alice))
	dune := NewBook("Dune", "1", 0)
	emma := NewBook("Emma", "2", time.Second)
	require.NoError(t, b.InsertBook(ctx, dune))
	require.NoError(t, b.InsertBook(ctx, emma))

	second := NewRecord(alice.ID, emma.ID, 2*time.Hour)
	first := NewRecord(alice.ID, dune.ID, time.Hour)
	require.NoError(t, b.InsertRecord(ctx, second))
	require.NoError(t, b.InsertRecord(ctx, first))

	t.Run("history is ordered by borrow time", func(t *testing.T) {
		records, err := b.FindRecordsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.ID, records[0].ID)
		assert.Equal(t, second.ID, records[1].ID)
		sameTime(t, first.BorrowedAt, records[0].BorrowedAt)
		sameTime(t, first.DueAt, records[0].DueAt)
		assert.Nil(t, records[0].ReturnedAt)
	})

	t.Run("active record lookup", func(t *testing.T) {
		got, err := b.FindActiveRecord(ctx, alice.ID, dune.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		active, err := b.FindActiveRecordsByBook(ctx, dune.ID)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("returned record is no longer active", func(t *testing.T) {
		returned := *first
		returnedAt := Base.Add(3 * time.Hour)
		returned.ReturnedAt = &returnedAt
		returned.Status = entities.BorrowingStatusReturned
		require.NoError(t, b.UpdateRecord(ctx, &returned))

		_, err := b.FindActiveRecord(ctx, alice.ID, dune.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		records, err := b.ListRecords(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, entities.BorrowingStatusReturned, records[0].Status)
		require.NotNil(t, records[0].ReturnedAt)
		sameTime(t, returnedAt, *records[0].ReturnedAt)
	})

	t.Run("legacy overdue status counts as outstanding", func(t *testing.T) {
		legacy := *second
		legacy.Status = entities.BorrowingStatusOverdue
		require.NoError(t, b.UpdateRecord(ctx, &legacy))

		got, err := b.FindActiveRecord(ctx, alice.ID, emma.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("references must exist", func(t *testing.T) {
		err := b.InsertRecord(ctx, NewRecord(alice.ID, "missing-book", 0))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		err = b.InsertRecord(ctx, NewRecord("missing-user", dune.ID, 0))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("duplicate id and unknown id", func(t *testing.T) {
		assert.ErrorIs(t, b.InsertRecord(ctx, second), storage.ErrDuplicateKey)
		assert.ErrorIs(t, b.UpdateRecord(ctx, NewRecord(alice.ID, dune.ID, 0)), storage.ErrNotFound)
	})
}

func testRequests(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	alice := NewUser("alice", entities.UserRoleRegular, 0)
	admin := NewUser("root", entities.UserRoleAdmin, time.Second)
	require.NoError(t, b.InsertUser(ctx, alice))
	require.NoError(t, b.InsertUser(ctx, admin))
	dune := NewBook("Dune", "1", 0)
	require.NoError(t, b.InsertBook(ctx, dune))

	req := NewRequest(alice.ID, dune.ID, time.Minute)
	require.NoError(t, b.InsertRequest(ctx, req))

	t.Run("pending lookups", func(t *testing.T) {
		pending, err := b.FindPendingRequests(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, req.ID, pending[0].ID)
		sameTime(t, req.RequestedAt, pending[0].RequestedAt)

		got, err := b.FindPendingRequest(ctx, alice.ID, dune.ID)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)
		assert.Nil(t, got.AdminID)
		assert.Nil(t, got.RespondedAt)
	})

	t.Run("responded request leaves the pending set", func(t *testing.T) {
		responded := *req
		at := Base.Add(time.Hour)
		responded.Status = entities.RequestStatusRejected
		responded.RespondedAt = &at
		responded.AdminID = &admin.ID
		require.NoError(t, b.UpdateRequest(ctx, &responded))

		pending, err := b.FindPendingRequests(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
		_, err = b.FindPendingRequest(ctx, alice.ID, dune.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		got, err := b.FindRequestByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusRejected, got.Status)
		require.NotNil(t, got.AdminID)
		assert.Equal(t, admin.ID, *got.AdminID)
		require.NotNil(t, got.RespondedAt)
		sameTime(t, at, *got.RespondedAt)

		all, err := b.ListRequests(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("unknown ids", func(t *testing.T) {
		ghost := NewRequest(alice.ID, dune.ID, 0)
		assert.ErrorIs(t, b.UpdateRequest(ctx, ghost), storage.ErrNotFound)
		assert.ErrorIs(t, b.DeleteRequest(ctx, ghost.ID), storage.ErrNotFound)
		_, err := b.FindRequestByID(ctx, ghost.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.DeleteRequest(ctx, req.ID))
		all, err := b.ListRequests(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func testDeleteBookCascade(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	alice := NewUser("alice", entities.UserRoleRegular, 0)
	require.NoError(t, b.InsertUser(ctx, alice))
	dune := NewBook("Dune", "1", 0)
	emma := NewBook("Emma", "2", time.Second)
	require.NoError(t, b.InsertBook(ctx, dune))
	require.NoError(t, b.InsertBook(ctx, emma))
	require.NoError(t, b.InsertRecord(ctx, NewRecord(alice.ID, dune.ID, 0)))
	require.NoError(t, b.InsertRecord(ctx, NewRecord(alice.ID, emma.ID, time.Second)))
	require.NoError(t, b.InsertRequest(ctx, NewRequest(alice.ID, dune.ID, 0)))

	require.NoError(t, b.DeleteBook(ctx, dune.ID))

	records, err := b.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, emma.ID, records[0].BookID)

	requests, err := b.ListRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func testDeleteUserCascade(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	alice := NewUser("alice", entities.UserRoleRegular, 0)
	carol := NewUser("carol", entities.UserRoleRegular, time.Second)
	admin := NewUser("root", entities.UserRoleAdmin, 2*time.Second)
	for _, u := range []*entities.User{alice, carol, admin} {
		require.NoError(t, b.InsertUser(ctx, u))
	}
	dune := NewBook("Dune", "1", 0)
	require.NoError(t, b.InsertBook(ctx, dune))

	require.NoError(t, b.InsertRecord(ctx, NewRecord(alice.ID, dune.ID, 0)))
	require.NoError(t, b.InsertRequest(ctx, NewRequest(alice.ID, dune.ID, 0)))

	answered := NewRequest(carol.ID, dune.ID, time.Minute)
	at := Base.Add(time.Hour)
	answered.Status = entities.RequestStatusRejected
	answered.RespondedAt = &at
	answered.AdminID = &admin.ID
	require.NoError(t, b.InsertRequest(ctx, answered))

	require.NoError(t, b.DeleteUser(ctx, alice.ID))
	records, err := b.ListRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	requests, err := b.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, answered.ID, requests[0].ID)

	require.NoError(t, b.DeleteUser(ctx, admin.ID))
	got, err := b.FindRequestByID(ctx, answered.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AdminID, "deleting the responding admin detaches the request")
	assert.Equal(t, entities.RequestStatusRejected, got.Status)
}

func testSnapshots(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	dune := NewBook("Dune", "1", 0)
	require.NoError(t, b.InsertBook(ctx, dune))

	// Mutating the inserted value must not reach the store either.
	dune.Title = "changed after insert"

	books, err := b.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	books[0].Title = "changed in snapshot"
	*books[0].ISBN = "changed isbn"

	got, err := b.FindBookByID(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "1", got.ISBNValue())
	got.Status = entities.BookStatusBorrowed

	again, err := b.FindBookByID(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BookStatusAvailable, again.Status)
}

func testAtomically(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	alice := NewUser("alice", entities.UserRoleRegular, 0)
	require.NoError(t, b.InsertUser(ctx, alice))
	dune := NewBook("Dune", "1", 0)
	require.NoError(t, b.InsertBook(ctx, dune))

	record := NewRecord(alice.ID, dune.ID, 0)
	err := b.Atomically(ctx, func(repo storage.Repository) error {
		if err := repo.SetBookStatus(ctx, dune.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, Base); err != nil {
			return err
		}
		return repo.InsertRecord(ctx, record)
	})
	require.NoError(t, err)

	got, err := b.FindBookByID(ctx, dune.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.BookStatusBorrowed, got.Status)
	_, err = b.FindActiveRecord(ctx, alice.ID, dune.ID)
	require.NoError(t, err)

	err = b.Atomically(ctx, func(repo storage.Repository) error {
		return repo.SetBookStatus(ctx, dune.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, Base)
	})
	assert.ErrorIs(t, err, storage.ErrInvalidState, "errors from fn are returned as they are")
}

func testSeed(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.InsertUser(ctx, NewUser("alice", entities.UserRoleRegular, 0)))
	require.NoError(t, b.InsertBook(ctx, NewBook("Dune", "1", 0)))

	catalog := storage.SampleCatalog()
	require.NoError(t, b.Seed(ctx, catalog))

	users, err := b.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	books, err := b.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, len(catalog))
	for i := range catalog {
		assert.Equal(t, catalog[i].Title, books[i].Title)
		assert.Equal(t, entities.BookStatusAvailable, books[i].Status)
	}

	got, err := b.FindBookByISBN(ctx, "978-0-452-28423-4")
	require.NoError(t, err)
	assert.Equal(t, "1984", got.Title)
	assert.Equal(t, "George Orwell", got.Author)
	assert.Equal(t, 1949, got.PublicationYear)
}

func testInitializeKeepsData(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	require.NoError(t, b.InsertBook(ctx, NewBook("Dune", "1", 0)))
	require.NoError(t, b.Initialize(ctx))
	require.NoError(t, b.TestConnection(ctx))

	books, err := b.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func titles(books []entities.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}
