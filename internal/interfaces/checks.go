package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/datasource"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/services"
	"github.com/mrlokans/librarian/internal/storage"
	"github.com/mrlokans/librarian/internal/storage/filestore"
)

// =============================================================================
// Storage
// =============================================================================

// Backend implementations
var _ storage.Backend = (*filestore.Store)(nil)
var _ storage.Backend = (*database.Database)(nil)

// Source implementations
var _ storage.Source = (*datasource.Selector)(nil)

// =============================================================================
// Workflow Hooks
// =============================================================================

// LoanRecorder implementations
var _ services.LoanRecorder = (*audit.Journal)(nil)

// OverdueLister implementations
var _ scheduler.OverdueLister = (*services.LoanService)(nil)
