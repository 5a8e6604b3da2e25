package sqlitemigrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyMigrationsOnce(t *testing.T) {
	sqlDB := openTempDB(t)
	migrations := fstest.MapFS{
		"0001_init.sql": &fstest.MapFile{Data: []byte(`
CREATE TABLE books (id TEXT PRIMARY KEY, title TEXT NOT NULL);
`)},
		"0002_add_summary.sql": &fstest.MapFile{Data: []byte(`
ALTER TABLE books ADD COLUMN summary TEXT;
`)},
	}

	if err := ApplyMigrations(sqlDB, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	// A second run must be a no-op.
	if err := ApplyMigrations(sqlDB, migrations); err != nil {
		t.Fatalf("reapply migrations: %v", err)
	}

	var count int
	if err := sqlDB.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count applied migrations: %v", err)
	}
	if count != 2 {
		t.Fatalf("applied migrations = %d, want 2", count)
	}

	if _, err := sqlDB.Exec("INSERT INTO books (id, title, summary) VALUES ('b1', 'Draft', 's')"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
}

func TestApplyMigrationsLexicalOrder(t *testing.T) {
	sqlDB := openTempDB(t)
	migrations := fstest.MapFS{
		"0002_index.sql": &fstest.MapFile{Data: []byte(`CREATE INDEX idx_books_title ON books (title);`)},
		"0001_table.sql": &fstest.MapFile{Data: []byte(`CREATE TABLE books (id TEXT PRIMARY KEY, title TEXT);`)},
	}

	if err := ApplyMigrations(sqlDB, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
}

func TestApplyMigrationsNilDB(t *testing.T) {
	if err := ApplyMigrations(nil, fstest.MapFS{}); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migrate.db")
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close sqlite db: %v", err)
		}
	})
	return sqlDB
}
