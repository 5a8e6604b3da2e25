// Package sqlite implements the storage ports over a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/wordloom/wordloom/internal/platform/storage/sqlitemigrate"
	"github.com/wordloom/wordloom/internal/storage"
	"github.com/wordloom/wordloom/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// toMicros normalizes timestamps into microsecond precision for storage.
// Event versions derive from the same value, so the stored occurred_at and
// the version guard can never disagree.
func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

// fromMicros restores microsecond precision and keeps UTC normalization.
func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

func nullMicros(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*value), Valid: true}
}

func microsPtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMicros(value.Int64)
	return &t
}

// Store implements the content-lifecycle persistence over SQLite.
//
// A single SQLite file backs aggregates, the chronicle log, both outbox
// tables and the search index, so every write path can share one transaction
// and visibility boundary.
type Store struct {
	sqlDB *sql.DB
}

// DB returns the raw database handle for event-bus dispatchers that manage
// their own transactions.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Open opens the SQLite store and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks database reachability for worker readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// isUniqueViolation detects SQLite unique-constraint failures so adapters can
// translate business-key collisions into storage.ErrAlreadyExists.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed") || strings.Contains(value, "constraint failed: unique")
}

// orderClause resolves an allow-listed sort key to SQL. Raw request input is
// validated by storage.ParseSort before it reaches this point.
func orderClause(sort string) string {
	key, ok := storage.ParseSort(sort)
	if !ok {
		key = storage.DefaultSort
	}
	direction := "ASC"
	if strings.HasPrefix(key, "-") {
		key = strings.TrimPrefix(key, "-")
		direction = "DESC"
	}
	switch key {
	case "created_at", "updated_at":
		return key + " " + direction + ", id " + direction
	default:
		// Keys without a backing column fall back to the default ordering.
		return "updated_at DESC, id DESC"
	}
}

var _ storage.LibraryStore = (*Store)(nil)
var _ storage.BookshelfStore = (*Store)(nil)
var _ storage.BookStore = (*Store)(nil)
var _ storage.BlockStore = (*Store)(nil)
var _ storage.BasementStore = (*Store)(nil)
var _ storage.ChronicleStore = (*Store)(nil)
var _ storage.SearchStore = (*Store)(nil)
var _ storage.OutboxStore = (*Store)(nil)
var _ storage.ProjectionStatusStore = (*Store)(nil)
var _ storage.MediaStore = (*Store)(nil)
var _ storage.TagStore = (*Store)(nil)
