package services

import (
	"github.com/mrlokans/librarian/internal/entities"
)

// LoanRecorder receives workflow transitions once they are stored, and the
// reconciliation flags raised when a compensating write fails. The audit
// journal implements it.
type LoanRecorder interface {
	RecordLoanEvent(event entities.LoanEvent) error
}

// Loan is an outstanding borrowing record joined with its book and borrower.
type Loan struct {
	Record   entities.BorrowingRecord
	Book     entities.Book
	Borrower entities.User
}

// InvariantReport lists every violation of the loan invariants found in a
// backend. A consistent backend yields an empty report.
type InvariantReport struct {
	// BooksOutOfSync holds books whose status disagrees with their active records.
	BooksOutOfSync []entities.Book
	// DuplicateActiveLoans holds (user, book) pairs with more than one active record.
	DuplicateActiveLoans []entities.BorrowingRecord
	// DuplicatePendingRequests holds (user, book) pairs with more than one pending request.
	DuplicatePendingRequests []entities.BorrowingRequest
}

// OK reports whether no violation was found.
func (r InvariantReport) OK() bool {
	return len(r.BooksOutOfSync) == 0 &&
		len(r.DuplicateActiveLoans) == 0 &&
		len(r.DuplicatePendingRequests) == 0
}
