package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBorrowingRecord_IsOverdue(t *testing.T) {
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record BorrowingRecord
		want   bool
		days   int
	}{
		{
			name:   "active and past due",
			record: BorrowingRecord{Status: BorrowingStatusActive, DueAt: now.Add(-72 * time.Hour)},
			want:   true,
			days:   3,
		},
		{
			name:   "active and not yet due",
			record: BorrowingRecord{Status: BorrowingStatusActive, DueAt: now.Add(time.Hour)},
			want:   false,
		},
		{
			name:   "due exactly now",
			record: BorrowingRecord{Status: BorrowingStatusActive, DueAt: now},
			want:   false,
		},
		{
			name:   "returned late is history, not overdue",
			record: BorrowingRecord{Status: BorrowingStatusReturned, DueAt: now.Add(-72 * time.Hour)},
			want:   false,
		},
		{
			name:   "legacy overdue status still counts when past due",
			record: BorrowingRecord{Status: BorrowingStatusOverdue, DueAt: now.Add(-25 * time.Hour)},
			want:   true,
			days:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.IsOverdue(now))
			assert.Equal(t, tt.days, tt.record.DaysOverdue(now))
		})
	}
}

func TestBook_Matches(t *testing.T) {
	isbn := "978-0-452-28423-4"
	book := Book{Title: "Nineteen Eighty-Four", Author: "George Orwell", ISBN: &isbn}

	assert.True(t, book.Matches("eighty"))
	assert.True(t, book.Matches("ORWELL"))
	assert.True(t, book.Matches("28423"))
	assert.True(t, book.Matches(""))
	assert.False(t, book.Matches("huxley"))

	noISBN := Book{Title: "Untitled", Author: "Anon"}
	assert.False(t, noISBN.Matches("978"))
	assert.Equal(t, "", noISBN.ISBNValue())
}

func TestUserRole_Valid(t *testing.T) {
	assert.True(t, UserRoleAdmin.Valid())
	assert.True(t, UserRoleRegular.Valid())
	assert.False(t, UserRole("Librarian").Valid())
	assert.False(t, UserRole("").Valid())
}
