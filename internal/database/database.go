package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/records"
	"github.com/mrlokans/librarian/internal/database/requests"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/storage"
)

// Dialect names the SQL engine behind a Database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// tables in dependency order: referencing tables last.
var tables = []any{
	&entities.User{},
	&entities.Book{},
	&entities.BorrowingRecord{},
	&entities.BorrowingRequest{},
}

var _ storage.Backend = (*Database)(nil)

// Options tune how the connection is opened.
type Options struct {
	// LogSQL logs every statement through the gorm logger.
	LogSQL bool
}

// Database is the relational storage backend.
type Database struct {
	store

	DB      *gorm.DB
	dialect Dialect
	dsn     string
}

// NewDatabase connects to dsn. PostgreSQL URLs and key/value DSNs select the
// PostgreSQL driver; anything else is treated as a SQLite file path. The
// schema is not touched until Initialize or Seed is called.
func NewDatabase(dsn string, opts Options) (*Database, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: database connection string is empty", storage.ErrConfiguration)
	}

	dialect := DetectDialect(dsn)
	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		path, err := sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(path)
	}

	logLevel := logger.Silent
	if opts.LogSQL {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return storage.Now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w: %w", storage.ErrConnection, err)
	}

	if dialect == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w: %w", storage.ErrConnection, err)
		}
		// SQLite allows a single writer; a shared connection keeps
		// transactions from tripping over each other's locks.
		sqlDB.SetMaxOpenConns(1)
	}

	return &Database{
		store:   newStore(db),
		DB:      db,
		dialect: dialect,
		dsn:     dsn,
	}, nil
}

// DetectDialect picks the driver for a connection string.
func DetectDialect(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") {
		return DialectPostgres
	}
	return DialectSQLite
}

func sqliteDSN(path string) (string, error) {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", storage.IOError("mkdir", err))
		}
	}
	return "file:" + path + "?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", nil
}

func (d *Database) Kind() storage.Kind {
	return storage.KindRelational
}

// Dialect reports which SQL engine the database talks to.
func (d *Database) Dialect() Dialect {
	return d.dialect
}

// Initialize creates missing tables and indexes. Existing rows are kept.
func (d *Database) Initialize(ctx context.Context) error {
	if err := d.DB.WithContext(ctx).AutoMigrate(tables...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", storage.IOError("migrate", err))
	}
	log.Printf("Database initialized successfully (%s)", d.dialect)
	return nil
}

// Seed drops every table, recreates the schema and loads catalog.
func (d *Database) Seed(ctx context.Context, catalog []entities.Book) error {
	migrator := d.DB.WithContext(ctx).Migrator()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := migrator.DropTable(tables[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", storage.IOError("drop", err))
		}
	}
	if err := d.Initialize(ctx); err != nil {
		return err
	}

	err := d.Atomically(ctx, func(repo storage.Repository) error {
		for i := range catalog {
			book := catalog[i]
			if err := repo.InsertBook(ctx, &book); err != nil {
				return fmt.Errorf("failed to seed book %q: %w", book.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("Seeded %d books", len(catalog))
	return nil
}

// TestConnection pings the server.
func (d *Database) TestConnection(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrConnection, err)
	}
	return nil
}

// Atomically runs fn inside a transaction. An error from fn rolls back every
// write fn made.
func (d *Database) Atomically(ctx context.Context, fn func(repo storage.Repository) error) error {
	var fnErr error
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(newStore(tx))
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return translateError("transaction", err)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError maps gorm and driver errors onto the storage taxonomy.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomyError(err) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	case errors.Is(err, books.ErrStatusMismatch):
		return fmt.Errorf("%s: %w", op, storage.ErrInvalidState)
	case isDuplicateKey(err):
		return fmt.Errorf("%s: %w: %w", op, storage.ErrDuplicateKey, err)
	case isForeignKeyViolation(err):
		// The referenced user or book does not exist.
		return fmt.Errorf("%s: %w: %w", op, storage.ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Printf("Database error during %s: %v", op, err)
	return storage.IOError(op, err)
}

func isTaxonomyError(err error) bool {
	for _, target := range []error{
		storage.ErrNotFound,
		storage.ErrDuplicateKey,
		storage.ErrInvalidState,
		storage.ErrConfiguration,
		storage.ErrConnection,
		storage.ErrStorageIO,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// store implements storage.Repository over a gorm handle, which is either the
// connection pool or an open transaction.
type store struct {
	users    *users.Repository
	books    *books.Repository
	records  *records.Repository
	requests *requests.Repository
}

func newStore(db *gorm.DB) store {
	return store{
		users:    users.NewRepository(db),
		books:    books.NewRepository(db),
		records:  records.NewRepository(db),
		requests: requests.NewRepository(db),
	}
}
