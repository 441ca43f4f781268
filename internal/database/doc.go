// Package database provides the relational backend of the library.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, dialect detection, migrations
//	├── store.go         # storage.Repository over the sub-packages
//	├── books/           # Catalog CRUD, search and status compare-and-set
//	├── records/         # Borrowing records
//	├── requests/        # Loan requests
//	└── users/           # User accounts
//
// # Using the Backend
//
// The DSN picks the engine: a postgres:// URL or key=value string opens
// PostgreSQL, anything else is a SQLite file path.
//
//	db, err := database.NewDatabase("./library.db", database.Options{})
//	if err := db.Initialize(ctx); err != nil { ... }
//
//	err = db.Atomically(ctx, func(repo storage.Repository) error {
//		return repo.SetBookStatus(ctx, bookID, entities.BookStatusAvailable, entities.BookStatusBorrowed, time.Now())
//	})
//
// Writes inside Atomically share one transaction and roll back together.
// Driver errors are translated to the storage error kinds, so callers match
// storage.ErrNotFound or storage.ErrDuplicateKey regardless of the engine.
//
// # Adding a New Table
//
//  1. Add the entity to internal/entities and to the AutoMigrate list
//  2. Create a sub-package with a Repository struct holding a *gorm.DB
//  3. Add NewRepository(db *gorm.DB) and the query methods
//  4. Expose them through store.go so both backends stay interchangeable
package database
