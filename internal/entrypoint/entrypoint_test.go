package entrypoint

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

func testConfig(t *testing.T, kind string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Storage:       config.Storage{Kind: kind, DataDir: filepath.Join(dir, "data")},
		Database:      config.Database{DSN: filepath.Join(dir, "library.db")},
		Loans:         config.Loans{Period: 14 * 24 * time.Hour},
		Audit:         config.Audit{Dir: filepath.Join(dir, "audit")},
		OverdueReport: config.OverdueReport{Schedule: "0 9 * * *"},
	}
}

func TestApp_InitStore(t *testing.T) {
	for _, kind := range []string{"file", "sqlite"} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			app, err := New(ctx, testConfig(t, kind))
			require.NoError(t, err)
			t.Cleanup(func() { app.Close() })

			require.NoError(t, app.InitStore(ctx, false, false))
			books, err := app.Catalog.ListBooks(ctx)
			require.NoError(t, err)
			assert.Empty(t, books)

			require.NoError(t, app.InitStore(ctx, true, false))
			books, err = app.Catalog.ListBooks(ctx)
			require.NoError(t, err)
			assert.Len(t, books, 8)

			assert.ErrorIs(t, app.InitStore(ctx, true, false), ErrStoreNotEmpty)
			assert.ErrorIs(t, app.InitStore(ctx, true, false), storage.ErrInvalidState)

			_, err = app.Auth.Register(ctx, "reader", "secret", entities.UserRoleRegular)
			require.NoError(t, err)
			require.NoError(t, app.InitStore(ctx, true, true))
			users, err := app.Auth.ListUsers(ctx)
			require.NoError(t, err)
			assert.Empty(t, users, "forced seed replaces everything")
		})
	}
}

func TestApp_EndToEnd(t *testing.T) {
	ctx := context.Background()
	app, err := New(ctx, testConfig(t, "file"))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	require.NoError(t, app.InitStore(ctx, true, false))

	admin, err := app.Auth.Register(ctx, "librarian", "secret", entities.UserRoleAdmin)
	require.NoError(t, err)
	reader, err := app.Auth.Register(ctx, "reader", "secret", entities.UserRoleRegular)
	require.NoError(t, err)

	request, err := app.Loans.RequestLoan(ctx, reader.ID, "978-0-452-28423-4")
	require.NoError(t, err)
	_, err = app.Loans.ApproveRequest(ctx, request.ID, admin.ID)
	require.NoError(t, err)

	events, err := app.Journal.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, entities.LoanActionRequest, events[0].Action)
	assert.Equal(t, entities.LoanActionApprove, events[1].Action)
	assert.Equal(t, admin.ID, events[1].ActorID)

	var out bytes.Buffer
	report, err := app.OverdueReportScheduler(&out).RunNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Loans)
	assert.Contains(t, out.String(), "0 overdue loan(s)")
}

func TestApp_AuditDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "file")
	cfg.Audit.Dir = ""
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	assert.Nil(t, app.Journal)
	require.NoError(t, app.InitStore(ctx, true, false))
	admin, err := app.Auth.Register(ctx, "librarian", "secret", entities.UserRoleAdmin)
	require.NoError(t, err)
	reader, err := app.Auth.Register(ctx, "reader", "secret", entities.UserRoleRegular)
	require.NoError(t, err)
	_, err = app.Loans.LendBook(ctx, admin.ID, reader.ID, "978-0-452-28423-4")
	require.NoError(t, err)
}

func TestNew_BadDataSource(t *testing.T) {
	_, err := New(context.Background(), testConfig(t, "mongo"))
	assert.ErrorIs(t, err, storage.ErrConfiguration)
}
