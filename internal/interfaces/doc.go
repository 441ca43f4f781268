// Package interfaces documents the core abstractions used throughout the application.
//
// # Interface Categories
//
// ## Storage
//
//   - storage.Repository: entity reads and writes shared by every backend (internal/storage/repository.go)
//   - storage.Backend: a Repository with lifecycle and Atomically (internal/storage/repository.go)
//   - storage.Source: yields the backend currently in use (internal/storage/repository.go)
//
// Implementations: filestore.Store (JSON files) and database.Database (gorm
// over SQLite or PostgreSQL). datasource.Selector is the Source used by the
// running application; storage.StaticSource pins a single backend in tests.
//
// ## Workflow Hooks
//
//   - services.LoanRecorder: receives loan transitions (internal/services/interfaces.go)
//   - scheduler.OverdueLister: feeds the overdue report (internal/scheduler/overdue_report.go)
//
// # Adding a New Backend
//
//  1. Create a package that returns a type implementing storage.Backend
//  2. Run storagetest.Run against it from the package tests
//  3. Give it a storage.Kind and build it in datasource.Selector
//  4. Add a compile-time check to checks.go
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
//
// See checks.go for the cross-package ones.
package interfaces
