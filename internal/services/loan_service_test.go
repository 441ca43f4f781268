package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

func TestLoanService_LendAndReturn(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)

		record, err := f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)
		assert.Equal(t, entities.BorrowingStatusActive, record.Status)
		assert.Equal(t, entities.DefaultLoanPeriod, record.DueAt.Sub(record.BorrowedAt))
		assert.Equal(t, entities.BookStatusBorrowed, f.book(t, isbn1984).Status)

		borrowed, err := f.loans.BorrowedBooks(ctx, f.reader.ID)
		require.NoError(t, err)
		require.Len(t, borrowed, 1)
		assert.Equal(t, "1984", borrowed[0].Title)
		f.requireConsistent(t)

		returned, err := f.loans.ReturnBook(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)
		assert.Equal(t, record.ID, returned.ID)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)

		history, err := f.loans.BorrowingHistory(ctx, f.reader.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, entities.BorrowingStatusReturned, history[0].Status)
		assert.NotNil(t, history[0].ReturnedAt)

		borrowed, err = f.loans.BorrowedBooks(ctx, f.reader.ID)
		require.NoError(t, err)
		assert.Empty(t, borrowed)
		f.requireConsistent(t)

		assert.Equal(t, []entities.LoanAction{entities.LoanActionLend, entities.LoanActionReturn}, f.recorder.actions())
	})
}

func TestLoanService_LendBook_Rejections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		_, err := f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = f.loans.LendBook(ctx, f.admin.ID, "missing-user", isbn1984)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, "  ")
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)
		_, err = f.loans.LendBook(ctx, f.admin.ID, f.other.ID, isbn1984)
		assert.ErrorIs(t, err, storage.ErrInvalidState)

		records, err := b.ListRecords(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		f.requireConsistent(t)
	})
}

func TestLoanService_ReturnBook_Rejections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		t.Run("book not found", func(t *testing.T) {
			_, err := f.loans.ReturnBook(ctx, f.reader.ID, "missing")
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})

		t.Run("book already available", func(t *testing.T) {
			_, err := f.loans.ReturnBook(ctx, f.reader.ID, isbn1984)
			assert.ErrorIs(t, err, storage.ErrInvalidState)
		})

		_, err := f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)

		t.Run("borrowed by somebody else", func(t *testing.T) {
			_, err := f.loans.ReturnBook(ctx, f.other.ID, isbn1984)
			assert.ErrorIs(t, err, ErrNoActiveLoan)
			assert.ErrorIs(t, err, storage.ErrInvalidState)
			assert.Equal(t, entities.BookStatusBorrowed, f.book(t, isbn1984).Status)
		})

		t.Run("returning twice fails without side effects", func(t *testing.T) {
			first, err := f.loans.ReturnBook(ctx, f.reader.ID, isbn1984)
			require.NoError(t, err)

			_, err = f.loans.ReturnBook(ctx, f.reader.ID, isbn1984)
			assert.ErrorIs(t, err, storage.ErrInvalidState)

			history, err := f.loans.BorrowingHistory(ctx, f.reader.ID)
			require.NoError(t, err)
			require.Len(t, history, 1)
			require.NotNil(t, history[0].ReturnedAt)
			assert.True(t, first.ReturnedAt.Equal(*history[0].ReturnedAt))
			f.requireConsistent(t)
		})
	})
}

func TestLoanService_ReturnBookFor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		_, err := f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)

		_, err = f.loans.ReturnBookFor(ctx, f.admin.ID, "nobody", isbn1984)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		record, err := f.loans.ReturnBookFor(ctx, f.admin.ID, "reader", isbn1984)
		require.NoError(t, err)
		assert.Equal(t, f.reader.ID, record.UserID)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)
	})
}

func TestLoanService_DeskActionsRequireAdmin(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		_, err := f.loans.LendBook(ctx, f.other.ID, f.reader.ID, isbn1984)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		_, err = f.loans.LendBook(ctx, "missing-admin", f.reader.ID, isbn1984)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)

		_, err = f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)

		_, err = f.loans.ReturnBookFor(ctx, f.other.ID, "reader", isbn1984)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.Equal(t, entities.BookStatusBorrowed, f.book(t, isbn1984).Status)

		_, err = f.loans.ReturnBookFor(ctx, f.admin.ID, "reader", isbn1984)
		require.NoError(t, err)

		require.Len(t, f.recorder.events, 2)
		assert.Equal(t, f.admin.ID, f.recorder.events[0].ActorID)
		assert.Equal(t, f.admin.ID, f.recorder.events[1].ActorID)
		f.requireConsistent(t)
	})
}

func TestLoanService_RequestLoan(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusPending, request.Status)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status, "a request does not touch the book")

		_, err = f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.ErrorIs(t, err, storage.ErrInvalidState)

		// A different user may still ask for the same book.
		_, err = f.loans.RequestLoan(ctx, f.other.ID, isbn1984)
		require.NoError(t, err)

		_, err = f.loans.RequestLoan(ctx, f.reader.ID, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		pending, err := f.loans.PendingRequests(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		f.requireConsistent(t)
	})
}

func TestLoanService_ApproveRequest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)
		competing, err := f.loans.RequestLoan(ctx, f.other.ID, isbn1984)
		require.NoError(t, err)

		record, err := f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, f.reader.ID, record.UserID)
		assert.Equal(t, entities.BorrowingStatusActive, record.Status)

		stored, err := b.FindRequestByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusApproved, stored.Status)
		require.NotNil(t, stored.AdminID)
		assert.Equal(t, f.admin.ID, *stored.AdminID)
		assert.NotNil(t, stored.RespondedAt)
		assert.Equal(t, entities.BookStatusBorrowed, f.book(t, isbn1984).Status)

		_, err = f.loans.RequestLoan(ctx, f.other.ID, isbn1984)
		assert.ErrorIs(t, err, storage.ErrInvalidState, "book is no longer available")

		t.Run("approving a terminal request fails", func(t *testing.T) {
			_, err := f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
			assert.ErrorIs(t, err, storage.ErrInvalidState)
		})

		t.Run("competing request cannot be approved while the book is out", func(t *testing.T) {
			_, err := f.loans.ApproveRequest(ctx, competing.ID, f.admin.ID)
			assert.ErrorIs(t, err, storage.ErrInvalidState)

			stored, err := b.FindRequestByID(ctx, competing.ID)
			require.NoError(t, err)
			assert.Equal(t, entities.RequestStatusPending, stored.Status)
			assert.Nil(t, stored.AdminID)
		})

		t.Run("unknown request", func(t *testing.T) {
			_, err := f.loans.ApproveRequest(ctx, "missing", f.admin.ID)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})

		f.requireConsistent(t)
	})
}

func TestLoanService_ApproveRequest_RequiresAdmin(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)

		_, err = f.loans.ApproveRequest(ctx, request.ID, f.other.ID)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		err = f.loans.RejectRequest(ctx, request.ID, f.other.ID)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		stored, err := b.FindRequestByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusPending, stored.Status)
	})
}

func TestLoanService_ApproveRequest_BookTakenOutOfBand(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)

		book := f.book(t, isbn1984)
		require.NoError(t, b.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, storage.Now()))

		_, err = f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
		assert.ErrorIs(t, err, storage.ErrInvalidState)

		stored, err := b.FindRequestByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusPending, stored.Status)
		assert.Nil(t, stored.RespondedAt)

		records, err := b.ListRecords(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestLoanService_ApproveRequest_LendFailureRevertsRequest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		faulty := &faultyBackend{Backend: b}
		f := newFixture(t, faulty)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)

		faulty.failInsertRecord = true
		_, err = f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
		assert.ErrorIs(t, err, storage.ErrStorageIO)

		stored, err := b.FindRequestByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusPending, stored.Status)
		assert.Nil(t, stored.AdminID)
		assert.Nil(t, stored.RespondedAt)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)
		f.requireConsistent(t)

		faulty.failInsertRecord = false
		_, err = f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
		require.NoError(t, err, "a reverted request can be approved again")
		f.requireConsistent(t)
	})
}

func TestLoanService_ApproveRequest_FailedRevertIsFlagged(t *testing.T) {
	store := newFileBackend(t)
	faulty := &faultyBackend{Backend: store}
	f := newFixture(t, faulty)
	ctx := context.Background()

	request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
	require.NoError(t, err)

	faulty.failInsertRecord = true
	faulty.failUpdateRequestFrom = 2
	_, err = f.loans.ApproveRequest(ctx, request.ID, f.admin.ID)
	assert.ErrorIs(t, err, storage.ErrStorageIO)

	stored, err := store.FindRequestByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.RequestStatusApproved, stored.Status, "the request is left for reconciliation")
	assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)

	require.Len(t, f.recorder.events, 2)
	reconcile := f.recorder.events[1]
	assert.Equal(t, entities.LoanActionReconcile, reconcile.Action)
	assert.Equal(t, entities.AuditStatusFailed, reconcile.Status)
	assert.Equal(t, request.ID, reconcile.RequestID)
	assert.Contains(t, reconcile.Detail, "disk full")
}

func TestLoanService_ReturnBook_StatusFailureRevertsRecord(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		faulty := &faultyBackend{Backend: b}
		f := newFixture(t, faulty)
		ctx := context.Background()

		_, err := f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)

		faulty.failSetAvailable = true
		_, err = f.loans.ReturnBook(ctx, f.reader.ID, isbn1984)
		assert.ErrorIs(t, err, storage.ErrStorageIO)

		active, err := b.FindActiveRecord(ctx, f.reader.ID, f.book(t, isbn1984).ID)
		require.NoError(t, err)
		assert.Nil(t, active.ReturnedAt)
		assert.Equal(t, entities.BookStatusBorrowed, f.book(t, isbn1984).Status)
		f.requireConsistent(t)
	})
}

func TestLoanService_RejectRequest(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		request, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
		require.NoError(t, err)

		require.NoError(t, f.loans.RejectRequest(ctx, request.ID, f.admin.ID))

		stored, err := b.FindRequestByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.RequestStatusRejected, stored.Status)
		require.NotNil(t, stored.RespondedAt)
		assert.Equal(t, entities.BookStatusAvailable, f.book(t, isbn1984).Status)

		t.Run("rejecting twice fails without side effects", func(t *testing.T) {
			err := f.loans.RejectRequest(ctx, request.ID, f.admin.ID)
			assert.ErrorIs(t, err, storage.ErrInvalidState)

			again, err := b.FindRequestByID(ctx, request.ID)
			require.NoError(t, err)
			assert.True(t, stored.RespondedAt.Equal(*again.RespondedAt))
		})

		t.Run("the user may ask again", func(t *testing.T) {
			_, err := f.loans.RequestLoan(ctx, f.reader.ID, isbn1984)
			require.NoError(t, err)
		})

		assert.ErrorIs(t, f.loans.RejectRequest(ctx, "missing", f.admin.ID), storage.ErrNotFound)
	})
}

func TestLoanService_ConcurrentLendHasOneWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		const workers = 6
		borrowers := []*entities.User{f.reader, f.other}
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.loans.LendBook(ctx, f.admin.ID, borrowers[i%2].ID, isbn1984)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrInvalidState)
		}
		assert.Equal(t, 1, wins)

		active, err := b.FindActiveRecordsByBook(ctx, f.book(t, isbn1984).ID)
		require.NoError(t, err)
		assert.Len(t, active, 1)
		f.requireConsistent(t)
	})
}

func TestLoanService_OverdueLoans(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		lentAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		f := newFixture(t, b, WithClock(func() time.Time { return lentAt }), WithLoanPeriod(7*24*time.Hour))
		ctx := context.Background()

		_, err := f.catalog.AddBook(ctx, "Brave New World", "Aldous Huxley", 1932, "978-0-06-085052-4")
		require.NoError(t, err)

		_, err = f.loans.LendBook(ctx, f.admin.ID, f.reader.ID, isbn1984)
		require.NoError(t, err)
		_, err = f.loans.LendBook(ctx, f.admin.ID, f.other.ID, "978-0-06-085052-4")
		require.NoError(t, err)
		_, err = f.loans.ReturnBook(ctx, f.other.ID, "978-0-06-085052-4")
		require.NoError(t, err)

		active, err := f.loans.ActiveLoans(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "reader", active[0].Borrower.Username)
		assert.Equal(t, "1984", active[0].Book.Title)

		overdue, err := f.loans.OverdueLoans(ctx, lentAt.Add(6*24*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, overdue)

		now := lentAt.Add(10 * 24 * time.Hour)
		overdue, err = f.loans.OverdueLoans(ctx, now)
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, 3, overdue[0].Record.DaysOverdue(now))

		records, err := b.ListRecords(ctx)
		require.NoError(t, err)
		for _, r := range records {
			assert.NotEqual(t, entities.BorrowingStatusOverdue, r.Status, "overdue is never stored")
		}
	})
}

func TestLoanService_CheckInvariants_DetectsDrift(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b storage.Backend) {
		f := newFixture(t, b)
		ctx := context.Background()

		book := f.book(t, isbn1984)
		require.NoError(t, b.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, storage.Now()))

		report, err := f.loans.CheckInvariants(ctx)
		require.NoError(t, err)
		assert.False(t, report.OK())
		require.Len(t, report.BooksOutOfSync, 1)
		assert.Equal(t, book.ID, report.BooksOutOfSync[0].ID)
	})
}

func TestLoanService_NoBackend(t *testing.T) {
	loans := NewLoanService(storage.StaticSource(nil))

	_, err := loans.LendBook(context.Background(), "admin", "u", isbn1984)
	assert.ErrorIs(t, err, ErrNoBackend)
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}
