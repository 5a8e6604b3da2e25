package bookshelf

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func staticID() (string, error) {
	return "shelf-000000000000000000001", nil
}

func TestCreate(t *testing.T) {
	shelf, err := Create(CreateInput{LibraryID: "lib-1", Name: " Ideas "}, fixedNow, staticID)
	if err != nil {
		t.Fatalf("create bookshelf: %v", err)
	}
	if shelf.Name != "Ideas" {
		t.Fatalf("name = %q, want %q", shelf.Name, "Ideas")
	}
	if shelf.IsBasement {
		t.Fatal("user shelf must not be basement")
	}
	if shelf.Status != StatusActive {
		t.Fatalf("status = %v, want active", shelf.Status)
	}
	if shelf.BookCount != 0 {
		t.Fatalf("book count = %d, want 0", shelf.BookCount)
	}
}

func TestCreateRejectsBasementName(t *testing.T) {
	for _, name := range []string{"Basement", "basement", " BASEMENT "} {
		if _, err := Create(CreateInput{LibraryID: "lib-1", Name: name}, fixedNow, staticID); !errors.Is(err, ErrBasementReserved) {
			t.Fatalf("create %q err = %v, want ErrBasementReserved", name, err)
		}
	}
}

func TestCreateBasement(t *testing.T) {
	shelf, err := CreateBasement("lib-1", fixedNow, staticID)
	if err != nil {
		t.Fatalf("create basement: %v", err)
	}
	if !shelf.IsBasement {
		t.Fatal("expected basement flag")
	}
	if shelf.Name != BasementName {
		t.Fatalf("name = %q, want %q", shelf.Name, BasementName)
	}
}

func TestRename(t *testing.T) {
	shelf, err := Create(CreateInput{LibraryID: "lib-1", Name: "Ideas"}, fixedNow, staticID)
	if err != nil {
		t.Fatalf("create bookshelf: %v", err)
	}

	renamed, err := Rename(shelf, "Drafts", fixedNow)
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Drafts" {
		t.Fatalf("name = %q, want %q", renamed.Name, "Drafts")
	}

	if _, err := Rename(shelf, "basement", fixedNow); !errors.Is(err, ErrBasementReserved) {
		t.Fatalf("rename to basement err = %v, want ErrBasementReserved", err)
	}

	basement, err := CreateBasement("lib-1", fixedNow, staticID)
	if err != nil {
		t.Fatalf("create basement: %v", err)
	}
	if _, err := Rename(basement, "Junk", fixedNow); !errors.Is(err, ErrBasementReserved) {
		t.Fatalf("rename basement err = %v, want ErrBasementReserved", err)
	}
}

func TestTransition(t *testing.T) {
	shelf, err := Create(CreateInput{LibraryID: "lib-1", Name: "Ideas"}, fixedNow, staticID)
	if err != nil {
		t.Fatalf("create bookshelf: %v", err)
	}

	archived, err := Transition(shelf, StatusArchived, fixedNow)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != StatusArchived {
		t.Fatalf("status = %v, want archived", archived.Status)
	}

	restored, err := Transition(archived, StatusActive, fixedNow)
	if err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	if restored.Status != StatusActive {
		t.Fatalf("status = %v, want active", restored.Status)
	}

	deleted, err := Transition(restored, StatusDeleted, fixedNow)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.SoftDeletedAt == nil {
		t.Fatal("expected soft_deleted_at to be stamped")
	}

	if _, err := Transition(deleted, StatusActive, fixedNow); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("revive deleted err = %v, want ErrInvalidStatusTransition", err)
	}
	if _, err := Transition(archived, StatusDeleted, fixedNow); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("delete archived err = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestStatusLabels(t *testing.T) {
	tests := []struct {
		status Status
		label  string
	}{
		{StatusActive, "active"},
		{StatusArchived, "archived"},
		{StatusDeleted, "deleted"},
		{StatusUnspecified, "unspecified"},
	}
	for _, tc := range tests {
		if got := tc.status.Label(); got != tc.label {
			t.Fatalf("label(%d) = %q, want %q", tc.status, got, tc.label)
		}
	}
	if parsed, ok := ParseStatus(" Archived "); !ok || parsed != StatusArchived {
		t.Fatalf("parse = (%v, %v), want (archived, true)", parsed, ok)
	}
	if _, ok := ParseStatus("gone"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
