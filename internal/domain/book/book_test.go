package book

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wordloom/wordloom/internal/domain/bookshelf"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func staticID() (string, error) {
	return "book-00000000000000000000001", nil
}

func userShelf(id, libraryID string) bookshelf.Bookshelf {
	return bookshelf.Bookshelf{ID: id, LibraryID: libraryID, Name: "Ideas", Status: bookshelf.StatusActive}
}

func basementShelf(id, libraryID string) bookshelf.Bookshelf {
	return bookshelf.Bookshelf{ID: id, LibraryID: libraryID, Name: bookshelf.BasementName, IsBasement: true, Status: bookshelf.StatusActive}
}

func newTestBook(t *testing.T) Book {
	t.Helper()
	b, err := Create(userShelf("shelf-1", "lib-1"), CreateInput{Title: "Draft"}, fixedNow, staticID)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestCreate(t *testing.T) {
	b := newTestBook(t)
	if b.LibraryID != "lib-1" {
		t.Fatalf("library id = %q, want copied from shelf", b.LibraryID)
	}
	if b.BookshelfID != "shelf-1" {
		t.Fatalf("bookshelf id = %q", b.BookshelfID)
	}
	if b.Status != StatusDraft {
		t.Fatalf("status = %v, want draft", b.Status)
	}
	if b.Maturity != MaturitySeed {
		t.Fatalf("maturity = %v, want seed", b.Maturity)
	}
	if b.InBasement() {
		t.Fatal("new book must not be in basement")
	}
}

func TestCreateRejectsBasementShelf(t *testing.T) {
	_, err := Create(basementShelf("shelf-b", "lib-1"), CreateInput{Title: "Draft"}, fixedNow, staticID)
	if !errors.Is(err, ErrTargetIsBasement) {
		t.Fatalf("err = %v, want ErrTargetIsBasement", err)
	}
}

func TestCreateTitleValidation(t *testing.T) {
	if _, err := Create(userShelf("shelf-1", "lib-1"), CreateInput{Title: "  "}, fixedNow, staticID); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("err = %v, want ErrEmptyTitle", err)
	}
	long := strings.Repeat("t", MaxTitleLength+1)
	if _, err := Create(userShelf("shelf-1", "lib-1"), CreateInput{Title: long}, fixedNow, staticID); !errors.Is(err, ErrTitleTooLong) {
		t.Fatalf("err = %v, want ErrTitleTooLong", err)
	}
	// The bound counts characters, not bytes: a max-length multibyte title
	// passes even though it is three times the limit in bytes.
	wide := strings.Repeat("書", MaxTitleLength)
	if _, err := Create(userShelf("shelf-1", "lib-1"), CreateInput{Title: wide}, fixedNow, staticID); err != nil {
		t.Fatalf("max-length multibyte title rejected: %v", err)
	}
	if _, err := Create(userShelf("shelf-1", "lib-1"), CreateInput{Title: wide + "書"}, fixedNow, staticID); !errors.Is(err, ErrTitleTooLong) {
		t.Fatalf("err = %v, want ErrTitleTooLong past the character bound", err)
	}
}

func TestNormalizeCoverIcon(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"Open Book", "open-book", false},
		{"open_book", "open-book", false},
		{"  Rocket-7 ", "rocket-7", false},
		{"café", "", true},
		{"a/b", "", true},
	}
	for _, tc := range tests {
		got, err := NormalizeCoverIcon(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidCoverIcon) {
				t.Fatalf("normalize(%q) err = %v, want ErrInvalidCoverIcon", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("normalize(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestMoveToBookshelf(t *testing.T) {
	b := newTestBook(t)

	moved, err := MoveToBookshelf(b, userShelf("shelf-2", "lib-1"), fixedNow)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.BookshelfID != "shelf-2" {
		t.Fatalf("bookshelf id = %q, want shelf-2", moved.BookshelfID)
	}
	if moved.LibraryID != "lib-1" {
		t.Fatalf("library id = %q, want lib-1", moved.LibraryID)
	}

	if _, err := MoveToBookshelf(b, userShelf("shelf-x", "lib-other"), fixedNow); !errors.Is(err, ErrLibraryMismatch) {
		t.Fatalf("cross-library err = %v, want ErrLibraryMismatch", err)
	}
	if _, err := MoveToBookshelf(b, basementShelf("shelf-b", "lib-1"), fixedNow); !errors.Is(err, ErrTargetIsBasement) {
		t.Fatalf("basement target err = %v, want ErrTargetIsBasement", err)
	}
}

func TestBasementRoundTrip(t *testing.T) {
	b := newTestBook(t)
	basement := basementShelf("shelf-b", "lib-1")

	deleted, err := MoveToBasement(b, basement, fixedNow)
	if err != nil {
		t.Fatalf("move to basement: %v", err)
	}
	if !deleted.InBasement() {
		t.Fatal("expected book in basement")
	}
	if deleted.PreviousBookshelfID != "shelf-1" {
		t.Fatalf("previous shelf = %q, want shelf-1", deleted.PreviousBookshelfID)
	}
	if deleted.BookshelfID != "shelf-b" {
		t.Fatalf("bookshelf id = %q, want shelf-b", deleted.BookshelfID)
	}
	if deleted.MovedToBasementAt == nil || deleted.SoftDeletedAt == nil {
		t.Fatal("expected basement timestamps")
	}

	if _, err := MoveToBasement(deleted, basement, fixedNow); !errors.Is(err, ErrAlreadyInBasement) {
		t.Fatalf("second delete err = %v, want ErrAlreadyInBasement", err)
	}
	if _, err := MoveToBookshelf(deleted, userShelf("shelf-2", "lib-1"), fixedNow); !errors.Is(err, ErrSoftDeleted) {
		t.Fatalf("move while deleted err = %v, want ErrSoftDeleted", err)
	}

	restored, err := RestoreFromBasement(deleted, userShelf(deleted.PreviousBookshelfID, "lib-1"), fixedNow)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.InBasement() {
		t.Fatal("expected book out of basement")
	}
	if restored.BookshelfID != "shelf-1" {
		t.Fatalf("bookshelf id = %q, want original shelf-1", restored.BookshelfID)
	}
	if restored.PreviousBookshelfID != "" || restored.MovedToBasementAt != nil {
		t.Fatal("expected basement bookkeeping to be cleared")
	}
}

func TestRestoreValidation(t *testing.T) {
	b := newTestBook(t)
	if _, err := RestoreFromBasement(b, userShelf("shelf-2", "lib-1"), fixedNow); !errors.Is(err, ErrNotInBasement) {
		t.Fatalf("restore live book err = %v, want ErrNotInBasement", err)
	}

	deleted, err := MoveToBasement(b, basementShelf("shelf-b", "lib-1"), fixedNow)
	if err != nil {
		t.Fatalf("move to basement: %v", err)
	}
	if _, err := RestoreFromBasement(deleted, basementShelf("shelf-b", "lib-1"), fixedNow); !errors.Is(err, ErrTargetIsBasement) {
		t.Fatalf("restore to basement err = %v, want ErrTargetIsBasement", err)
	}
	if _, err := RestoreFromBasement(deleted, userShelf("shelf-z", "lib-other"), fixedNow); !errors.Is(err, ErrLibraryMismatch) {
		t.Fatalf("cross-library restore err = %v, want ErrLibraryMismatch", err)
	}
}

func TestChangeStage(t *testing.T) {
	b := newTestBook(t)

	published, err := ChangeStage(b, StatusPublished, fixedNow)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	archived, err := ChangeStage(published, StatusArchived, fixedNow)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != StatusArchived {
		t.Fatalf("status = %v, want archived", archived.Status)
	}

	if _, err := ChangeStage(b, StatusArchived, fixedNow); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("draft→archived err = %v, want ErrInvalidStatus", err)
	}
	if _, err := ChangeStage(archived, StatusDraft, fixedNow); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("archived→draft err = %v, want ErrInvalidStatus", err)
	}
}

func TestCoverMediaGating(t *testing.T) {
	b := newTestBook(t)

	// Binding outside stable maturity is rejected.
	if _, err := SetCoverMedia(b, "media-1", fixedNow); !errors.Is(err, ErrCoverRequiresStable) {
		t.Fatalf("bind at seed err = %v, want ErrCoverRequiresStable", err)
	}

	stable, _, err := ChangeMaturity(b, MaturityStable, fixedNow)
	if err != nil {
		t.Fatalf("to stable: %v", err)
	}
	withCover, err := SetCoverMedia(stable, "media-1", fixedNow)
	if err != nil {
		t.Fatalf("bind at stable: %v", err)
	}
	if withCover.CoverMediaID != "media-1" {
		t.Fatalf("cover media = %q, want media-1", withCover.CoverMediaID)
	}

	// Any downgrade clears the cover atomically.
	downgraded, coverCleared, err := ChangeMaturity(withCover, MaturityGrowing, fixedNow)
	if err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	if !coverCleared {
		t.Fatal("expected cover cleared flag")
	}
	if downgraded.CoverMediaID != "" {
		t.Fatalf("cover media = %q, want cleared", downgraded.CoverMediaID)
	}

	// Clearing is allowed at any maturity.
	cleared, err := SetCoverMedia(withCover, "", fixedNow)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if cleared.CoverMediaID != "" {
		t.Fatal("expected cover cleared")
	}
}

func TestChangeMaturityValidation(t *testing.T) {
	b := newTestBook(t)
	if _, _, err := ChangeMaturity(b, MaturityUnspecified, fixedNow); !errors.Is(err, ErrInvalidMaturity) {
		t.Fatalf("err = %v, want ErrInvalidMaturity", err)
	}
}

func TestRecordOpenDoesNotTouchUpdatedAt(t *testing.T) {
	b := newTestBook(t)
	later := func() time.Time { return fixedNow().Add(time.Hour) }
	opened := RecordOpen(b, later)
	if opened.LastOpenedAt == nil || !opened.LastOpenedAt.Equal(later().UTC()) {
		t.Fatalf("last opened = %v, want %v", opened.LastOpenedAt, later())
	}
	if !opened.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatal("expected updated_at untouched by open")
	}
}

func TestBasementEventsEmitCanonicalAndAlias(t *testing.T) {
	b := newTestBook(t)
	deleted, err := MoveToBasement(b, basementShelf("shelf-b", "lib-1"), fixedNow)
	if err != nil {
		t.Fatalf("move to basement: %v", err)
	}

	events := BasementEvents(deleted, "cleanup")
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != "book_moved_to_basement" || events[1].Type != "book_soft_deleted" {
		t.Fatalf("event types = %q, %q", events[0].Type, events[1].Type)
	}
	if events[0].Version() != events[1].Version() {
		t.Fatal("expected the alias pair to share one version")
	}
	for _, evt := range events {
		if evt.BookID != deleted.ID {
			t.Fatalf("book id = %q, want %q", evt.BookID, deleted.ID)
		}
	}
}
