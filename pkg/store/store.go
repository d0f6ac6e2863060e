// Package store persists package catalogs in an embedded SQLite database.
//
// The schema has one parent table (packages) and one child table per
// declaration kind, plus struct_fields, enum_variants and reexports. Every
// child row references its package with ON DELETE CASCADE.
//
// [Store.Replace] is the only way to write declarations: it swaps the
// whole catalog of one package inside a single transaction, so readers
// never observe a half-replaced package.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/matzehuels/crateindex/pkg/errors"
)

//go:embed schema.sql
var schema string

// FileName is the database file name inside the data directory.
const FileName = "index.db"

// Config configures [Open].
type Config struct {
	// Path is the database file. Parent directories are created.
	Path string
	// MaxOpenConns bounds the connection pool. SQLite serializes writers,
	// so a small pool suffices.
	MaxOpenConns int
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
}

// DefaultConfig returns the configuration for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		MaxOpenConns: 4,
		BusyTimeout:  5 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New(errors.ErrCodeInvalidInput, "database path is required")
	}
	if c.MaxOpenConns < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "max open connections must be at least 1, got %d", c.MaxOpenConns)
	}
	if c.BusyTimeout < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "busy timeout cannot be negative")
	}
	return nil
}

func (c Config) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	return "file:" + filepath.ToSlash(c.Path) + "?" + q.Encode()
}

// Store is the catalog database. It is safe for concurrent use; open one
// per process and Close it on shutdown.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database and applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create %s", filepath.Dir(cfg.Path))
	}

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "open %s", cfg.Path)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "apply schema")
	}
	return &Store{db: db, path: cfg.Path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// File returns the database file path.
func (s *Store) File() string { return s.path }

func storageErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrCodeStorage, err, format, args...)
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
