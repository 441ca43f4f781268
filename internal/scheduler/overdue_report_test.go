package scheduler

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/services"
	"github.com/mrlokans/librarian/internal/storage"
	"github.com/mrlokans/librarian/internal/storage/filestore"
)

type stubLister struct {
	loans []services.Loan
	err   error
	asked time.Time
}

func (s *stubLister) OverdueLoans(ctx context.Context, now time.Time) ([]services.Loan, error) {
	s.asked = now
	return s.loans, s.err
}

func TestOverdueReportScheduler_RunNow(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)
	isbn := "978-0-452-28423-4"
	lister := &stubLister{loans: []services.Loan{{
		Record:   entities.BorrowingRecord{DueAt: now.Add(-3 * 24 * time.Hour), Status: entities.BorrowingStatusActive},
		Book:     entities.Book{Title: "1984", ISBN: &isbn},
		Borrower: entities.User{Username: "reader"},
	}}}
	var out bytes.Buffer
	s := NewOverdueReportScheduler(lister, &out, "0 9 * * *")
	s.now = func() time.Time { return now }

	assert.Nil(t, s.LastReport())
	report, err := s.RunNow(context.Background())
	require.NoError(t, err)

	assert.True(t, now.Equal(lister.asked))
	assert.Len(t, report.Loans, 1)
	assert.Same(t, report, s.LastReport())
	assert.Contains(t, out.String(), "1 overdue loan(s)")
	assert.Contains(t, out.String(), "1984 (ISBN 978-0-452-28423-4) borrowed by reader, due 2024-03-17, 3 day(s) overdue")
}

func TestOverdueReportScheduler_RunNowFailure(t *testing.T) {
	lister := &stubLister{err: errors.New("backend gone")}
	var out bytes.Buffer
	s := NewOverdueReportScheduler(lister, &out, "0 9 * * *")

	_, err := s.RunNow(context.Background())
	assert.ErrorContains(t, err, "backend gone")
	assert.Empty(t, out.String())
	assert.Nil(t, s.LastReport())
}

func TestOverdueReportScheduler_StartStop(t *testing.T) {
	s := NewOverdueReportScheduler(&stubLister{}, &bytes.Buffer{}, "0 9 * * *")

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	next := s.GetNextRunTime()
	require.NotNil(t, next)
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 0, next.Minute())

	require.NoError(t, s.Start(context.Background()), "starting twice is a no-op")

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())
	s.Stop()
}

func TestOverdueReportScheduler_StopsWithContext(t *testing.T) {
	s := NewOverdueReportScheduler(&stubLister{}, &bytes.Buffer{}, "*/15 * * * *")
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestOverdueReportScheduler_InvalidSchedule(t *testing.T) {
	s := NewOverdueReportScheduler(&stubLister{}, &bytes.Buffer{}, "every morning")
	assert.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestOverdueReportScheduler_WithLoanService(t *testing.T) {
	ctx := context.Background()
	store := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Seed(ctx, storage.SampleCatalog()))
	require.NoError(t, store.InsertUser(ctx, &entities.User{
		ID: "user-1", Username: "reader", PasswordHash: "digest:salt",
		Role: entities.UserRoleRegular, CreatedAt: storage.Now(),
	}))
	require.NoError(t, store.InsertUser(ctx, &entities.User{
		ID: "admin-1", Username: "librarian", PasswordHash: "digest:salt",
		Role: entities.UserRoleAdmin, CreatedAt: storage.Now(),
	}))

	lentAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	loans := services.NewLoanService(storage.StaticSource(store),
		services.WithClock(func() time.Time { return lentAt }),
		services.WithLoanPeriod(14*24*time.Hour))
	_, err := loans.LendBook(ctx, "admin-1", "user-1", "978-0-7432-7356-5")
	require.NoError(t, err)

	var out bytes.Buffer
	s := NewOverdueReportScheduler(loans, &out, "0 9 * * *")
	s.now = func() time.Time { return lentAt.Add(20 * 24 * time.Hour) }

	report, err := s.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, report.Loans, 1)
	assert.Contains(t, out.String(), "The Great Gatsby")
	assert.Contains(t, out.String(), "6 day(s) overdue")

	books, err := store.ListBooks(ctx)
	require.NoError(t, err)
	records, err := store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 8)
	require.Len(t, records, 1)
	assert.Equal(t, entities.BorrowingStatusActive, records[0].Status, "the report never writes")
}

func TestGetCronDescription(t *testing.T) {
	assert.Equal(t, "Daily at 09:00", GetCronDescription("0 9 * * *"))
	assert.Equal(t, "Custom schedule: 5 4 * * *", GetCronDescription("5 4 * * *"))
}

func TestGetNextRunTime(t *testing.T) {
	from := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	next, err := GetNextRunTime("0 9 * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), next)

	_, err = GetNextRunTime("nope", from)
	assert.Error(t, err)
}
