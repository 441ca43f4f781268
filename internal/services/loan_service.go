package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

// LoanService runs the loan workflow: requests, approvals, lending and
// returns. It keeps no state between calls; every operation re-reads what it
// depends on inside one Backend.Atomically call on whichever backend the
// source hands out at that moment.
type LoanService struct {
	source     storage.Source
	recorder   LoanRecorder
	loanPeriod time.Duration
	now        func() time.Time
}

type LoanOption func(*LoanService)

// WithLoanPeriod overrides entities.DefaultLoanPeriod.
func WithLoanPeriod(d time.Duration) LoanOption {
	return func(s *LoanService) {
		if d > 0 {
			s.loanPeriod = d
		}
	}
}

// WithRecorder sends completed transitions to r.
func WithRecorder(r LoanRecorder) LoanOption {
	return func(s *LoanService) { s.recorder = r }
}

// WithClock replaces the time source. Returned times are normalised to UTC
// microseconds.
func WithClock(now func() time.Time) LoanOption {
	return func(s *LoanService) {
		s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	}
}

// NewLoanService creates a new LoanService.
func NewLoanService(source storage.Source, opts ...LoanOption) *LoanService {
	s := &LoanService{
		source:     source,
		loanPeriod: entities.DefaultLoanPeriod,
		now:        storage.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoanPeriod returns how long a loan lasts before it is overdue.
func (s *LoanService) LoanPeriod() time.Duration {
	return s.loanPeriod
}

// RequestLoan files a pending request by userID for the book with isbn. The
// book itself is not touched.
func (s *LoanService) RequestLoan(ctx context.Context, userID, isbn string) (*entities.BorrowingRequest, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	isbn, err = requireISBN(isbn)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var request *entities.BorrowingRequest
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		if err := requireAdmin(ctx, repo, adminID); err != nil {
			return err
		}
		if _, err := repo.FindUserByID(ctx, userID); err != nil {
			return fmt.Errorf("user %q: %w", userID, err)
		}
		book, err := repo.FindBookByISBN(ctx, isbn)
		if err != nil {
			return fmt.Errorf("book %q: %w", isbn, err)
		}
		if book.Status != entities.BookStatusAvailable {
			return fmt.Errorf("book %q is %s: %w", isbn, book.Status, storage.ErrInvalidState)
		}
		if err := ensureNoPendingRequest(ctx, repo, userID, book.ID); err != nil {
			return err
		}

		request = &entities.BorrowingRequest{
			ID:          storage.NewID(),
			UserID:      userID,
			BookID:      book.ID,
			RequestedAt: now,
			Status:      entities.RequestStatusPending,
		}
		return repo.InsertRequest(ctx, request)
	})
	if err != nil {
		logFailure("request loan", err)
		return nil, err
	}

	s.record(entities.LoanEvent{
		Action:    entities.LoanActionRequest,
		UserID:    userID,
		BookID:    request.BookID,
		RequestID: request.ID,
		Status:    entities.AuditStatusSuccess,
	})
	return request, nil
}

// ApproveRequest accepts a pending request and lends the book to the
// requester. The book must still be Available; otherwise the request stays
// Pending and ErrInvalidState is returned.
//
// If a write after the request update fails, the request is put back to
// Pending. When even that write fails the request is left Approved without a
// loan and a reconcile event is recorded for an operator.
func (s *LoanService) ApproveRequest(ctx context.Context, requestID, adminID string) (*entities.BorrowingRecord, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}

	now := s.now()
	compensate := !b.Kind().RollsBack()
	var record *entities.BorrowingRecord
	var approved entities.BorrowingRequest
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		if err := requireAdmin(ctx, repo, adminID); err != nil {
			return err
		}
		request, err := repo.FindRequestByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %q: %w", requestID, err)
		}
		if request.Status != entities.RequestStatusPending {
			return fmt.Errorf("request %q is %s: %w", requestID, request.Status, storage.ErrInvalidState)
		}
		book, err := repo.FindBookByID(ctx, request.BookID)
		if err != nil {
			return fmt.Errorf("book %q: %w", request.BookID, err)
		}
		if book.Status != entities.BookStatusAvailable {
			return fmt.Errorf("book %q is %s: %w", book.ISBNValue(), book.Status, storage.ErrInvalidState)
		}

		approved = *request
		approved.Status = entities.RequestStatusApproved
		approved.RespondedAt = &now
		approved.AdminID = &adminID
		if err := repo.UpdateRequest(ctx, &approved); err != nil {
			return err
		}

		record, err = s.lend(ctx, repo, request.UserID, book, now, compensate)
		if err != nil {
			if compensate {
				s.revertApproval(ctx, repo, request, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		logFailure("approve request", err)
		return nil, err
	}

	s.record(entities.LoanEvent{
		Action:    entities.LoanActionApprove,
		UserID:    approved.UserID,
		BookID:    approved.BookID,
		RequestID: approved.ID,
		RecordID:  record.ID,
		ActorID:   adminID,
		Status:    entities.AuditStatusSuccess,
	})
	return record, nil
}

// revertApproval puts a request back to Pending after the lend half of an
// approval failed.
func (s *LoanService) revertApproval(ctx context.Context, repo storage.Repository, pending *entities.BorrowingRequest, cause error) {
	if err := repo.UpdateRequest(ctx, pending); err != nil {
		s.flagReconcile(entities.LoanEvent{
			UserID:    pending.UserID,
			BookID:    pending.BookID,
			RequestID: pending.ID,
			Detail:    fmt.Sprintf("request left Approved without a loan: lend failed (%v), revert failed (%v)", cause, err),
		})
	}
}

// RejectRequest declines a pending request. Nothing but the request changes.
func (s *LoanService) RejectRequest(ctx context.Context, requestID, adminID string) error {
	b, err := backendOf(s.source)
	if err != nil {
		return err
	}

	now := s.now()
	var rejected entities.BorrowingRequest
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		if err := requireAdmin(ctx, repo, adminID); err != nil {
			return err
		}
		request, err := repo.FindRequestByID(ctx, requestID)
		if err != nil {
			return fmt.Errorf("request %q: %w", requestID, err)
		}
		if request.Status != entities.RequestStatusPending {
			return fmt.Errorf("request %q is %s: %w", requestID, request.Status, storage.ErrInvalidState)
		}

		rejected = *request
		rejected.Status = entities.RequestStatusRejected
		rejected.RespondedAt = &now
		rejected.AdminID = &adminID
		return repo.UpdateRequest(ctx, &rejected)
	})
	if err != nil {
		logFailure("reject request", err)
		return err
	}

	s.record(entities.LoanEvent{
		Action:    entities.LoanActionReject,
		UserID:    rejected.UserID,
		BookID:    rejected.BookID,
		RequestID: rejected.ID,
		ActorID:   adminID,
		Status:    entities.AuditStatusSuccess,
	})
	return nil
}

// LendBook lends an Available book to userID directly, without a request.
// adminID must name an admin.
func (s *LoanService) LendBook(ctx context.Context, adminID, userID, isbn string) (*entities.BorrowingRecord, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	isbn, err = requireISBN(isbn)
	if err != nil {
		return nil, err
	}

	now := s.now()
	compensate := !b.Kind().RollsBack()
	var record *entities.BorrowingRecord
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		if err := requireAdmin(ctx, repo, adminID); err != nil {
			return err
		}
		if _, err := repo.FindUserByID(ctx, userID); err != nil {
			return fmt.Errorf("user %q: %w", userID, err)
		}
		book, err := repo.FindBookByISBN(ctx, isbn)
		if err != nil {
			return fmt.Errorf("book %q: %w", isbn, err)
		}
		if book.Status != entities.BookStatusAvailable {
			return fmt.Errorf("book %q is %s: %w", isbn, book.Status, storage.ErrInvalidState)
		}
		record, err = s.lend(ctx, repo, userID, book, now, compensate)
		return err
	})
	if err != nil {
		logFailure("lend book", err)
		return nil, err
	}

	s.record(entities.LoanEvent{
		Action:   entities.LoanActionLend,
		UserID:   userID,
		BookID:   record.BookID,
		RecordID: record.ID,
		ActorID:  adminID,
		Status:   entities.AuditStatusSuccess,
	})
	return record, nil
}

// lend flips the book to Borrowed and opens the matching record. The status
// compare-and-set comes first so that of two racing lends only one gets past
// it. If the record cannot be stored the status is flipped back.
func (s *LoanService) lend(ctx context.Context, repo storage.Repository, userID string, book *entities.Book, now time.Time, compensate bool) (*entities.BorrowingRecord, error) {
	if _, err := repo.FindActiveRecord(ctx, userID, book.ID); err == nil {
		return nil, fmt.Errorf("user %q already holds book %q: %w", userID, book.ISBNValue(), storage.ErrInvalidState)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := repo.SetBookStatus(ctx, book.ID, entities.BookStatusAvailable, entities.BookStatusBorrowed, now); err != nil {
		return nil, fmt.Errorf("book %q: %w", book.ISBNValue(), err)
	}

	record := &entities.BorrowingRecord{
		ID:         storage.NewID(),
		UserID:     userID,
		BookID:     book.ID,
		BorrowedAt: now,
		DueAt:      now.Add(s.loanPeriod),
		Status:     entities.BorrowingStatusActive,
	}
	if err := repo.InsertRecord(ctx, record); err != nil {
		if compensate {
			if rerr := repo.SetBookStatus(ctx, book.ID, entities.BookStatusBorrowed, entities.BookStatusAvailable, now); rerr != nil {
				s.flagReconcile(entities.LoanEvent{
					UserID: userID,
					BookID: book.ID,
					Detail: fmt.Sprintf("book left Borrowed without a loan: insert failed (%v), revert failed (%v)", err, rerr),
				})
			}
		}
		return nil, err
	}
	return record, nil
}

// ReturnBook closes the active loan of userID on the book with isbn. It fails
// with ErrNoActiveLoan when the user holds no such loan, even if somebody else
// has the book.
func (s *LoanService) ReturnBook(ctx context.Context, userID, isbn string) (*entities.BorrowingRecord, error) {
	return s.returnBook(ctx, isbn, "", func(storage.Repository) (string, error) {
		return userID, nil
	})
}

// ReturnBookFor is the desk variant of ReturnBook: an admin names the
// borrower by username.
func (s *LoanService) ReturnBookFor(ctx context.Context, adminID, username, isbn string) (*entities.BorrowingRecord, error) {
	username = strings.TrimSpace(username)
	return s.returnBook(ctx, isbn, adminID, func(repo storage.Repository) (string, error) {
		if err := requireAdmin(ctx, repo, adminID); err != nil {
			return "", err
		}
		user, err := repo.FindUserByUsername(ctx, username)
		if err != nil {
			return "", fmt.Errorf("user %q: %w", username, err)
		}
		return user.ID, nil
	})
}

// returnBook runs a return inside one atomic call. borrower resolves the
// user whose loan is closed; actorID is recorded when an admin acts.
func (s *LoanService) returnBook(ctx context.Context, isbn, actorID string, borrower func(repo storage.Repository) (string, error)) (*entities.BorrowingRecord, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	isbn, err = requireISBN(isbn)
	if err != nil {
		return nil, err
	}

	now := s.now()
	compensate := !b.Kind().RollsBack()
	var returned entities.BorrowingRecord
	var userID string
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		var err error
		if userID, err = borrower(repo); err != nil {
			return err
		}
		book, err := repo.FindBookByISBN(ctx, isbn)
		if err != nil {
			return fmt.Errorf("book %q: %w", isbn, err)
		}
		if book.Status != entities.BookStatusBorrowed {
			return fmt.Errorf("book %q is %s: %w", isbn, book.Status, storage.ErrInvalidState)
		}
		active, err := repo.FindActiveRecord(ctx, userID, book.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %q, book %q: %w", userID, isbn, ErrNoActiveLoan)
		}
		if err != nil {
			return err
		}

		returned = *active
		returned.Status = entities.BorrowingStatusReturned
		returned.ReturnedAt = &now
		if err := repo.UpdateRecord(ctx, &returned); err != nil {
			return err
		}

		if err := repo.SetBookStatus(ctx, book.ID, entities.BookStatusBorrowed, entities.BookStatusAvailable, now); err != nil {
			if compensate {
				if rerr := repo.UpdateRecord(ctx, active); rerr != nil {
					s.flagReconcile(entities.LoanEvent{
						UserID:   userID,
						BookID:   book.ID,
						RecordID: active.ID,
						Detail:   fmt.Sprintf("record Returned but book still Borrowed: status flip failed (%v), revert failed (%v)", err, rerr),
					})
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		logFailure("return book", err)
		return nil, err
	}

	s.record(entities.LoanEvent{
		Action:   entities.LoanActionReturn,
		UserID:   userID,
		BookID:   returned.BookID,
		RecordID: returned.ID,
		ActorID:  actorID,
		Status:   entities.AuditStatusSuccess,
	})
	return &returned, nil
}

// AvailableBooks lists the books that can be requested or lent right now.
func (s *LoanService) AvailableBooks(ctx context.Context) ([]entities.Book, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	books, err := b.ListBooks(ctx)
	if err != nil {
		logFailure("list books", err)
		return nil, err
	}
	available := make([]entities.Book, 0, len(books))
	for _, book := range books {
		if book.Status == entities.BookStatusAvailable {
			available = append(available, book)
		}
	}
	return available, nil
}

// BorrowedBooks lists the books userID currently holds, in borrowing order.
func (s *LoanService) BorrowedBooks(ctx context.Context, userID string) ([]entities.Book, error) {
	loans, err := s.loans(ctx, func(repo storage.Repository) ([]entities.BorrowingRecord, error) {
		return repo.FindRecordsByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	books := make([]entities.Book, 0, len(loans))
	for _, l := range loans {
		books = append(books, l.Book)
	}
	return books, nil
}

// BorrowingHistory lists every loan of userID, returned ones included.
func (s *LoanService) BorrowingHistory(ctx context.Context, userID string) ([]entities.BorrowingRecord, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	records, err := b.FindRecordsByUser(ctx, userID)
	if err != nil {
		logFailure("borrowing history", err)
		return nil, err
	}
	return records, nil
}

// PendingRequests lists the requests awaiting an admin decision.
func (s *LoanService) PendingRequests(ctx context.Context) ([]entities.BorrowingRequest, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}
	requests, err := b.FindPendingRequests(ctx)
	if err != nil {
		logFailure("pending requests", err)
		return nil, err
	}
	return requests, nil
}

// ActiveLoans lists every outstanding loan with its book and borrower.
func (s *LoanService) ActiveLoans(ctx context.Context) ([]Loan, error) {
	return s.loans(ctx, func(repo storage.Repository) ([]entities.BorrowingRecord, error) {
		return repo.ListRecords(ctx)
	})
}

// OverdueLoans lists the outstanding loans whose due date is before now.
func (s *LoanService) OverdueLoans(ctx context.Context, now time.Time) ([]Loan, error) {
	loans, err := s.ActiveLoans(ctx)
	if err != nil {
		return nil, err
	}
	overdue := make([]Loan, 0, len(loans))
	for _, l := range loans {
		if l.Record.IsOverdue(now) {
			overdue = append(overdue, l)
		}
	}
	return overdue, nil
}

// loans joins the outstanding records returned by list to their books and
// borrowers, reading everything in one consistent view.
func (s *LoanService) loans(ctx context.Context, list func(storage.Repository) ([]entities.BorrowingRecord, error)) ([]Loan, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return nil, err
	}

	var loans []Loan
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		records, err := list(repo)
		if err != nil {
			return err
		}
		books, err := repo.ListBooks(ctx)
		if err != nil {
			return err
		}
		users, err := repo.ListUsers(ctx)
		if err != nil {
			return err
		}
		booksByID := make(map[string]entities.Book, len(books))
		for _, book := range books {
			booksByID[book.ID] = book
		}
		usersByID := make(map[string]entities.User, len(users))
		for _, u := range users {
			usersByID[u.ID] = u
		}

		loans = make([]Loan, 0, len(records))
		for _, r := range records {
			if !r.IsOutstanding() {
				continue
			}
			book, ok := booksByID[r.BookID]
			if !ok {
				log.Printf("Skipping record %s: book %s does not exist", r.ID, r.BookID)
				continue
			}
			loans = append(loans, Loan{Record: r, Book: book, Borrower: usersByID[r.UserID]})
		}
		return nil
	})
	if err != nil {
		logFailure("list loans", err)
		return nil, err
	}
	return loans, nil
}

// CheckInvariants scans the whole backend for books whose status disagrees
// with their active records and for duplicated active loans or pending
// requests.
func (s *LoanService) CheckInvariants(ctx context.Context) (InvariantReport, error) {
	b, err := backendOf(s.source)
	if err != nil {
		return InvariantReport{}, err
	}

	var report InvariantReport
	err = b.Atomically(ctx, func(repo storage.Repository) error {
		books, err := repo.ListBooks(ctx)
		if err != nil {
			return err
		}
		records, err := repo.ListRecords(ctx)
		if err != nil {
			return err
		}
		requests, err := repo.ListRequests(ctx)
		if err != nil {
			return err
		}

		activeByBook := make(map[string]int)
		seenLoan := make(map[string]bool)
		for _, r := range records {
			if !r.IsOutstanding() {
				continue
			}
			activeByBook[r.BookID]++
			key := r.UserID + "|" + r.BookID
			if seenLoan[key] {
				report.DuplicateActiveLoans = append(report.DuplicateActiveLoans, r)
			}
			seenLoan[key] = true
		}
		for _, book := range books {
			active := activeByBook[book.ID]
			borrowed := book.Status == entities.BookStatusBorrowed
			if (borrowed && active != 1) || (!borrowed && active != 0) {
				report.BooksOutOfSync = append(report.BooksOutOfSync, book)
			}
		}

		seenRequest := make(map[string]bool)
		for _, r := range requests {
			if r.Status != entities.RequestStatusPending {
				continue
			}
			key := r.UserID + "|" + r.BookID
			if seenRequest[key] {
				report.DuplicatePendingRequests = append(report.DuplicatePendingRequests, r)
			}
			seenRequest[key] = true
		}
		return nil
	})
	if err != nil {
		logFailure("check invariants", err)
		return InvariantReport{}, err
	}
	return report, nil
}

func (s *LoanService) record(event entities.LoanEvent) {
	if s.recorder == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if err := s.recorder.RecordLoanEvent(event); err != nil {
		log.Printf("Failed to record %s event: %v", event.Action, err)
	}
}

// flagReconcile reports state that a failed compensation left inconsistent.
func (s *LoanService) flagReconcile(event entities.LoanEvent) {
	event.Action = entities.LoanActionReconcile
	event.Status = entities.AuditStatusFailed
	log.Printf("RECONCILE: %s", event.Detail)
	s.record(event)
}

func ensureNoPendingRequest(ctx context.Context, repo storage.Repository, userID, bookID string) error {
	_, err := repo.FindPendingRequest(ctx, userID, bookID)
	if err == nil {
		return ErrDuplicateRequest
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func requireAdmin(ctx context.Context, repo storage.Repository, adminID string) error {
	admin, err := repo.FindUserByID(ctx, adminID)
	if err != nil {
		return fmt.Errorf("admin %q: %w", adminID, err)
	}
	if !admin.IsAdmin() {
		return fmt.Errorf("user %q is not an admin: %w", admin.Username, ErrPermissionDenied)
	}
	return nil
}

func requireISBN(isbn string) (string, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return "", fmt.Errorf("isbn is required: %w", ErrInvalidInput)
	}
	return isbn, nil
}
