package entities

import (
	"strings"
	"time"
)

type UserRole string

const (
	UserRoleAdmin   UserRole = "Admin"
	UserRoleRegular UserRole = "RegularUser"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleRegular
}

type BookStatus string

const (
	BookStatusAvailable BookStatus = "Available"
	BookStatusBorrowed  BookStatus = "Borrowed"
)

type BorrowingStatus string

const (
	BorrowingStatusActive   BorrowingStatus = "Active"
	BorrowingStatusReturned BorrowingStatus = "Returned"
	// BorrowingStatusOverdue is accepted when reading legacy data but never written.
	// Use BorrowingRecord.IsOverdue instead.
	BorrowingStatusOverdue BorrowingStatus = "Overdue"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusApproved RequestStatus = "Approved"
	RequestStatusRejected RequestStatus = "Rejected"
)

// DefaultLoanPeriod is how long a book may be kept before it is overdue.
const DefaultLoanPeriod = 14 * 24 * time.Hour

type User struct {
	ID           string    `gorm:"primaryKey;size:50" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:100;not null" json:"username"`
	PasswordHash string    `gorm:"size:500;not null" json:"password_hash"`
	Role         UserRole  `gorm:"size:20;not null" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

type Book struct {
	ID              string     `gorm:"primaryKey;size:50" json:"id"`
	Title           string     `gorm:"size:500;not null" json:"title"`
	Author          string     `gorm:"size:300;not null" json:"author"`
	PublicationYear int        `json:"publication_year"`
	ISBN            *string    `gorm:"size:50;uniqueIndex:idx_books_isbn,where:isbn IS NOT NULL" json:"isbn,omitempty"`
	Status          BookStatus `gorm:"size:20;not null;index" json:"status"`
	CreatedAt       time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Book) TableName() string {
	return "books"
}

// ISBNValue returns the ISBN or an empty string when the book has none.
func (b *Book) ISBNValue() string {
	if b.ISBN == nil {
		return ""
	}
	return *b.ISBN
}

// Matches reports whether term occurs in the title, author or ISBN, ignoring case.
func (b *Book) Matches(term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(b.Title), term) ||
		strings.Contains(strings.ToLower(b.Author), term) ||
		(b.ISBN != nil && strings.Contains(strings.ToLower(*b.ISBN), term))
}

type BorrowingRecord struct {
	ID         string          `gorm:"primaryKey;size:50" json:"id"`
	UserID     string          `gorm:"size:50;not null;index" json:"user_id"`
	BookID     string          `gorm:"size:50;not null;index" json:"book_id"`
	BorrowedAt time.Time       `gorm:"not null" json:"borrowed_at"`
	DueAt      time.Time       `gorm:"not null" json:"due_at"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty"`
	Status     BorrowingStatus `gorm:"size:20;not null;index" json:"status"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Book *Book `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"-"`
}

func (BorrowingRecord) TableName() string {
	return "borrowing_records"
}

// IsOutstanding reports whether the loan has not been returned yet. Records
// carrying the legacy Overdue status are still outstanding.
func (r *BorrowingRecord) IsOutstanding() bool {
	return r.Status == BorrowingStatusActive || r.Status == BorrowingStatusOverdue
}

// IsOverdue is computed from the due date on every call; the stored status is
// never advanced to Overdue.
func (r *BorrowingRecord) IsOverdue(now time.Time) bool {
	return r.IsOutstanding() && r.DueAt.Before(now)
}

// DaysOverdue returns the number of whole days past the due date, or 0.
func (r *BorrowingRecord) DaysOverdue(now time.Time) int {
	if !r.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(r.DueAt) / (24 * time.Hour))
}

type BorrowingRequest struct {
	ID          string        `gorm:"primaryKey;size:50" json:"id"`
	UserID      string        `gorm:"size:50;not null;index" json:"user_id"`
	BookID      string        `gorm:"size:50;not null;index" json:"book_id"`
	RequestedAt time.Time     `gorm:"not null" json:"requested_at"`
	Status      RequestStatus `gorm:"size:20;not null;index" json:"status"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
	AdminID     *string       `gorm:"size:50" json:"admin_id,omitempty"`

	User  *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Book  *Book `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE" json:"-"`
	Admin *User `gorm:"foreignKey:AdminID;constraint:OnDelete:SET NULL" json:"-"`
}

func (BorrowingRequest) TableName() string {
	return "borrowing_requests"
}

func (r *BorrowingRequest) IsTerminal() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected
}
