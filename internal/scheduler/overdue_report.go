package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/librarian/internal/services"
)

// OverdueLister is the part of services.LoanService the report reads from.
type OverdueLister interface {
	OverdueLoans(ctx context.Context, now time.Time) ([]services.Loan, error)
}

// Report is one run of the overdue report.
type Report struct {
	GeneratedAt time.Time
	Loans       []services.Loan
}

// OverdueReportScheduler periodically writes the list of overdue loans to an
// output. It only reads: overdue is computed from due dates and never stored.
type OverdueReportScheduler struct {
	loans    OverdueLister
	out      io.Writer
	schedule string
	now      func() time.Time

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc

	// reportMu is separate from mu: Stop holds mu while waiting for a
	// running job, and the job stores its report.
	reportMu   sync.Mutex
	lastReport *Report
}

// NewOverdueReportScheduler creates a scheduler writing to out on schedule.
func NewOverdueReportScheduler(loans OverdueLister, out io.Writer, schedule string) *OverdueReportScheduler {
	return &OverdueReportScheduler{
		loans:    loans,
		out:      out,
		schedule: schedule,
		now:      time.Now,
		cron:     cron.New(cron.WithParser(scheduleParser)),
	}
}

// Start schedules the report. It stops when ctx is cancelled.
func (s *OverdueReportScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if err := ValidateCronSchedule(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.schedule, err)
	}

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunNow(cancelCtx); err != nil {
			log.Printf("Overdue report: %v", err)
		}
	})
	if err != nil {
		s.cancelFunc()
		return fmt.Errorf("failed to schedule overdue report: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := GetNextRunTime(s.schedule, s.now())
	log.Printf("Overdue report scheduler: started with schedule '%s' (%s). Next run: %v",
		s.schedule,
		GetCronDescription(s.schedule),
		nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop waits for a running report to finish and stops the scheduler.
func (s *OverdueReportScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron.Remove(s.entryID)

	s.isRunning = false
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	log.Printf("Overdue report scheduler: stopped")
}

// IsRunning returns whether the scheduler is active
func (s *OverdueReportScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next report will be written, or nil when
// the scheduler is stopped.
func (s *OverdueReportScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// LastReport returns the most recent report, or nil before the first run.
func (s *OverdueReportScheduler) LastReport() *Report {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()
	return s.lastReport
}

// RunNow builds the report immediately and writes it out.
func (s *OverdueReportScheduler) RunNow(ctx context.Context) (*Report, error) {
	now := s.now()
	loans, err := s.loans.OverdueLoans(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}

	report := &Report{GeneratedAt: now, Loans: loans}
	if err := WriteReport(s.out, report); err != nil {
		return nil, fmt.Errorf("failed to write overdue report: %w", err)
	}

	s.reportMu.Lock()
	s.lastReport = report
	s.reportMu.Unlock()
	return report, nil
}

// WriteReport renders report as plain text.
func WriteReport(w io.Writer, report *Report) error {
	if _, err := fmt.Fprintf(w, "Overdue report %s: %d overdue loan(s)\n",
		report.GeneratedAt.Format(time.RFC3339), len(report.Loans)); err != nil {
		return err
	}
	for _, l := range report.Loans {
		_, err := fmt.Fprintf(w, "  %s (ISBN %s) borrowed by %s, due %s, %d day(s) overdue\n",
			l.Book.Title,
			isbnOrDash(l.Book.ISBNValue()),
			l.Borrower.Username,
			l.Record.DueAt.Format("2006-01-02"),
			l.Record.DaysOverdue(report.GeneratedAt))
		if err != nil {
			return err
		}
	}
	return nil
}

func isbnOrDash(isbn string) string {
	if isbn == "" {
		return "-"
	}
	return isbn
}
