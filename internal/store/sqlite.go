package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mail-assistant/internal/apperr"
)

// timeLayout is fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may carry plain RFC 3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

// SQLiteStore implements the Store interface using a local SQLite database.
// The connection is opened lazily and re-opened after Close.
type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	s := &SQLiteStore{path: dbPath}
	if _, err := s.conn(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize opens the database if it is not already open.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// Close releases the database handle. Later calls re-open it.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return apperr.Wrap(apperr.StorageUnavailable, "closing sqlite db", err)
	}
	return nil
}

// conn returns the open handle, opening the database on first use.
func (s *SQLiteStore) conn(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := open(ctx, s.path)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageUnavailable, "opening cache", err)
	}
	s.db = db
	return db, nil
}

func open(ctx context.Context, dbPath string) (*sqlx.DB, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func runMigrations(ctx context.Context, db *sqlx.DB) error {
	currentVersion := 0

	var tableCount int
	err := db.GetContext(
		ctx,
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// storageErr classifies a database failure.
func storageErr(op string, err error) error {
	return apperr.Wrap(apperr.StorageUnavailable, op, err)
}
