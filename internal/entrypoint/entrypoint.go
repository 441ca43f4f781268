package entrypoint

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/datasource"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/services"
	"github.com/mrlokans/librarian/internal/storage"
)

// ErrStoreNotEmpty is returned by InitStore when seeding would overwrite data.
var ErrStoreNotEmpty = fmt.Errorf("data source already holds data, use force to overwrite: %w", storage.ErrInvalidState)

// App holds the wired services. Every service reads the live backend from
// Selector, so a switch is seen by all of them at once.
type App struct {
	Config   *config.Config
	Selector *datasource.Selector
	Auth     *auth.Service
	Loans    *services.LoanService
	Catalog  *services.CatalogService
	// Journal is nil when AUDIT_DIR is empty.
	Journal *audit.Journal
}

// New opens the configured data source and wires the services on top of it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	selector := datasource.NewSelector(cfg.Storage, cfg.Database)
	if err := selector.Open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open data source: %w", err)
	}

	var journal *audit.Journal
	var recorder services.LoanRecorder
	if cfg.Audit.Dir != "" {
		journal = audit.NewJournal(cfg.Audit.Dir)
		recorder = journal
	} else {
		log.Printf("WARNING: audit journal is disabled. Set 'AUDIT_DIR' to record loan events.")
	}

	return &App{
		Config:   cfg,
		Selector: selector,
		Auth:     auth.NewService(selector),
		Loans: services.NewLoanService(selector,
			services.WithLoanPeriod(cfg.Loans.Period),
			services.WithRecorder(recorder)),
		Catalog: services.NewCatalogService(selector, recorder),
		Journal: journal,
	}, nil
}

// InitStore prepares the live data source. With seed it replaces the contents
// with the sample catalog, which is refused on a store holding data unless
// force is set.
func (a *App) InitStore(ctx context.Context, seed, force bool) error {
	b := a.Selector.Backend()
	if b == nil {
		return services.ErrNoBackend
	}
	if err := b.Initialize(ctx); err != nil {
		return err
	}
	if !seed {
		return nil
	}
	if !force {
		empty, err := isEmpty(ctx, b)
		if err != nil {
			return err
		}
		if !empty {
			return ErrStoreNotEmpty
		}
	}
	if err := b.Seed(ctx, storage.SampleCatalog()); err != nil {
		return fmt.Errorf("failed to seed data source: %w", err)
	}
	log.Printf("Seeded %s data source with the sample catalog", b.Kind())
	return nil
}

// OverdueReportScheduler builds the overdue report scheduler writing to out.
func (a *App) OverdueReportScheduler(out io.Writer) *scheduler.OverdueReportScheduler {
	return scheduler.NewOverdueReportScheduler(a.Loans, out, a.Config.OverdueReport.Schedule)
}

// Close releases the data source.
func (a *App) Close() error {
	return a.Selector.Close()
}

func isEmpty(ctx context.Context, b storage.Backend) (bool, error) {
	users, err := b.ListUsers(ctx)
	if err != nil {
		return false, err
	}
	books, err := b.ListBooks(ctx)
	if err != nil {
		return false, err
	}
	records, err := b.ListRecords(ctx)
	if err != nil {
		return false, err
	}
	requests, err := b.ListRequests(ctx)
	if err != nil {
		return false, err
	}
	return len(users)+len(books)+len(records)+len(requests) == 0, nil
}
