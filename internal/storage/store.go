package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"costmanager/internal/log"

	_ "modernc.org/sqlite"
)

const (
	// DatabaseName is the logical name of the cost database; the file on disk
	// is DatabaseName + ".sqlite".
	DatabaseName = "CostManagerDB"

	// DefaultLastN is used by QueryLastN and QueryRecent when n <= 0.
	DefaultLastN = 15
)

// CostStore owns one SQLite connection pool for the cost database. The pool
// is opened lazily by the first operation and reused afterwards; concurrent
// first callers share a single open and migration run.
type CostStore struct {
	path string

	mu    sync.Mutex
	db    *sql.DB
	group singleflight.Group
}

// New returns a store for the database file in dir. Nothing is created on
// disk until the first operation (or an explicit Open).
func New(dir string) *CostStore {
	if dir == "" {
		dir = "."
	}
	return &CostStore{path: filepath.Join(dir, DatabaseName+".sqlite")}
}

// NewAtPath returns a store backed by an explicit database file path.
func NewAtPath(path string) *CostStore {
	return &CostStore{path: path}
}

// Path returns the database file path.
func (s *CostStore) Path() string {
	return s.path
}

// Open initializes the database eagerly. It is safe to call repeatedly and
// from multiple goroutines.
func (s *CostStore) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// Close releases the connection pool. A later operation reopens it.
func (s *CostStore) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db != nil {
		return db.Close()
	}
	return nil
}

// Version returns the applied schema version.
func (s *CostStore) Version(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}

	var (
		version int
		dirty   bool
	)
	err = db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return 0, storageErr("version", err)
	}
	if dirty {
		return version, storageErr("version", fmt.Errorf("schema version %d is dirty", version))
	}
	return version, nil
}

func (s *CostStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db != nil {
		return db, nil
	}

	// A cancelled first caller must not fail the callers sharing its open.
	openCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("open", func() (any, error) {
		s.mu.Lock()
		if s.db != nil {
			db := s.db
			s.mu.Unlock()
			return db, nil
		}
		s.mu.Unlock()

		db, err := openDatabase(openCtx, s.path)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, storageErr("open", err)
	}
	return v.(*sql.DB), nil
}

func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Cost database opened",
		log.FieldComponent, log.ComponentStorage,
		log.FieldDBPath, path,
		"schema_version", SchemaVersion)

	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
