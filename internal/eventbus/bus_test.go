package eventbus

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/wordloom/wordloom/internal/domain/event"
	_ "modernc.org/sqlite"
)

func openTempDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bus.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := sqlDB.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	if _, err := sqlDB.Exec(`CREATE TABLE marks (handler TEXT NOT NULL)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return sqlDB
}

func countMarks(t *testing.T, sqlDB *sql.DB, handler string) int {
	t.Helper()
	var count int
	if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM marks WHERE handler = ?`, handler).Scan(&count); err != nil {
		t.Fatalf("count marks: %v", err)
	}
	return count
}

func markHandler(name string) TxFunc {
	return func(ctx context.Context, _ event.Event, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO marks (handler) VALUES (?)`, name)
		return err
	}
}

func failAfterMark(name string) TxFunc {
	return func(ctx context.Context, _ event.Event, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO marks (handler) VALUES (?)`, name); err != nil {
			return err
		}
		return errors.New("handler blew up")
	}
}

func testEvent(typ event.Type) event.Event {
	return event.Event{
		ID:         "evt-1",
		Type:       typ,
		BookID:     "book-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestParseTxMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    TxMode
		wantErr bool
	}{
		{"", TxModeSavepoint, false},
		{"atomic", TxModeAtomic, false},
		{"savepoint", TxModeSavepoint, false},
		{"none", TxModeNone, false},
		{"SAVEPOINT", TxModeSavepoint, false},
		{"bogus", "", true},
	}
	for _, tc := range tests {
		got, err := ParseTxMode(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTxMode(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTxMode(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTxMode(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestSavepointModeIsolatesFailingHandler(t *testing.T) {
	sqlDB := openTempDB(t)
	bus, err := New(sqlDB, TxModeSavepoint)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	bus.RegisterTx(event.TypeBookCreated, "first", markHandler("first"))
	bus.RegisterTx(event.TypeBookCreated, "broken", failAfterMark("broken"))
	bus.RegisterTx(event.TypeBookCreated, "last", markHandler("last"))

	bus.Publish(context.Background(), []event.Event{testEvent(event.TypeBookCreated)})

	if got := countMarks(t, sqlDB, "first"); got != 1 {
		t.Fatalf("first handler marks = %d, want 1", got)
	}
	if got := countMarks(t, sqlDB, "broken"); got != 0 {
		t.Fatalf("broken handler marks = %d, want its savepoint rolled back", got)
	}
	if got := countMarks(t, sqlDB, "last"); got != 1 {
		t.Fatalf("last handler marks = %d, want handlers after the failure to run", got)
	}
}

func TestAtomicModeRollsBackWholeEvent(t *testing.T) {
	sqlDB := openTempDB(t)
	bus, err := New(sqlDB, TxModeAtomic)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	bus.RegisterTx(event.TypeBookCreated, "first", markHandler("first"))
	bus.RegisterTx(event.TypeBookCreated, "broken", failAfterMark("broken"))
	bus.RegisterTx(event.TypeBookCreated, "last", markHandler("last"))

	bus.Publish(context.Background(), []event.Event{testEvent(event.TypeBookCreated)})

	for _, name := range []string{"first", "broken", "last"} {
		if got := countMarks(t, sqlDB, name); got != 0 {
			t.Fatalf("%s marks = %d, want whole event rolled back", name, got)
		}
	}
}

func TestNoneModeRunsOnlyPureHandlers(t *testing.T) {
	bus, err := New(nil, TxModeNone)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	pureRan := false
	bus.RegisterPure(event.TypeBookCreated, "pure", func(context.Context, event.Event) error {
		pureRan = true
		return nil
	})
	bus.RegisterTx(event.TypeBookCreated, "db-bound", func(context.Context, event.Event, *sql.Tx) error {
		t.Fatal("db-bound handler must not run in tx mode none")
		return nil
	})

	bus.Publish(context.Background(), []event.Event{testEvent(event.TypeBookCreated)})

	if !pureRan {
		t.Fatal("expected pure handler to run")
	}
}

func TestHandlersRunInRegistrationOrder(t *testing.T) {
	sqlDB := openTempDB(t)
	bus, err := New(sqlDB, TxModeSavepoint)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	var order []string
	record := func(name string) TxFunc {
		return func(context.Context, event.Event, *sql.Tx) error {
			order = append(order, name)
			return nil
		}
	}
	bus.RegisterTx(event.TypeBookMoved, "a", record("a"))
	bus.RegisterTx(event.TypeBookMoved, "b", record("b"))
	bus.RegisterTx(event.TypeBookMoved, "c", record("c"))

	bus.Publish(context.Background(), []event.Event{testEvent(event.TypeBookMoved)})

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestPublishSkipsTypesWithoutHandlers(t *testing.T) {
	bus, err := New(nil, TxModeNone)
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	// No handlers registered; publishing must be a no-op, not a panic.
	bus.Publish(context.Background(), []event.Event{testEvent(event.TypeFocusStarted)})
}
