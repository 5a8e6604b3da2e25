package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/bookshelf"
	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/domain/library"
	"github.com/wordloom/wordloom/internal/platform/requestctx"
	"github.com/wordloom/wordloom/internal/storage"
)

// CreateLibraryInput names the caller-provided library metadata.
type CreateLibraryInput struct {
	Name        string
	Description string
}

// CreateLibrary creates a library together with its system-owned basement
// shelf. The shelf is persisted first so the back-reference never dangles.
func (s *Service) CreateLibrary(ctx context.Context, input CreateLibraryInput) (library.Library, error) {
	lib, err := library.Create(library.CreateInput{
		UserID:      requestctx.UserIDFromContext(ctx),
		Name:        input.Name,
		Description: input.Description,
	}, s.now, s.newID)
	if err != nil {
		return library.Library{}, err
	}

	basement, err := bookshelf.CreateBasement(lib.ID, s.now, s.newID)
	if err != nil {
		return library.Library{}, err
	}
	if err := s.stores.Bookshelves.PutBookshelf(ctx, basement); err != nil {
		return library.Library{}, fmt.Errorf("persist basement shelf: %w", err)
	}

	lib = library.LinkBasementShelf(lib, basement.ID, s.now)
	if err := s.stores.Libraries.PutLibrary(ctx, lib); err != nil {
		return library.Library{}, fmt.Errorf("persist library: %w", err)
	}
	return lib, nil
}

// GetLibrary returns one live library owned by the actor.
func (s *Service) GetLibrary(ctx context.Context, id string) (library.Library, error) {
	return s.authorizeLibraryID(ctx, id)
}

// ListLibraries pages the actor's live libraries.
func (s *Service) ListLibraries(ctx context.Context, params storage.ListLibrariesParams) ([]library.Library, error) {
	params.UserID = requestctx.UserIDFromContext(ctx)
	return s.stores.Libraries.ListLibraries(ctx, params)
}

// RenameLibrary applies a validated name change.
func (s *Service) RenameLibrary(ctx context.Context, id, name string) (library.Library, error) {
	lib, err := s.authorizeLibraryID(ctx, id)
	if err != nil {
		return library.Library{}, err
	}
	lib, err = library.Rename(lib, name, s.now)
	if err != nil {
		return library.Library{}, err
	}
	if err := s.stores.Libraries.PutLibrary(ctx, lib); err != nil {
		return library.Library{}, fmt.Errorf("persist library: %w", err)
	}
	return lib, nil
}

// UpdateLibraryInput is a partial update; nil fields stay untouched.
type UpdateLibraryInput struct {
	Name        *string
	Description *string
	Pinned      *bool
	Archived    *bool
}

// UpdateLibrary applies a partial metadata update.
func (s *Service) UpdateLibrary(ctx context.Context, id string, input UpdateLibraryInput) (library.Library, error) {
	lib, err := s.authorizeLibraryID(ctx, id)
	if err != nil {
		return library.Library{}, err
	}

	if input.Name != nil {
		lib, err = library.Rename(lib, *input.Name, s.now)
		if err != nil {
			return library.Library{}, err
		}
	}
	if input.Description != nil {
		lib.Description = strings.TrimSpace(*input.Description)
	}
	if input.Pinned != nil {
		lib.Pinned = *input.Pinned
	}
	if input.Archived != nil {
		lib.Archived = *input.Archived
	}
	lib.UpdatedAt = s.now().UTC()

	if err := s.stores.Libraries.PutLibrary(ctx, lib); err != nil {
		return library.Library{}, fmt.Errorf("persist library: %w", err)
	}
	return lib, nil
}

// GetLibraryTags returns the library's tag list in stored order.
func (s *Service) GetLibraryTags(ctx context.Context, id string) ([]string, error) {
	if _, err := s.authorizeLibraryID(ctx, id); err != nil {
		return nil, err
	}
	return s.stores.Tags.GetLibraryTags(ctx, id)
}

// SetLibraryTags replaces the library's tag list. Tags are trimmed,
// lowercased and deduplicated; empties are dropped.
func (s *Service) SetLibraryTags(ctx context.Context, id string, tags []string) ([]string, error) {
	if _, err := s.authorizeLibraryID(ctx, id); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		normalized = append(normalized, tag)
	}

	if err := s.stores.Tags.ReplaceLibraryTags(ctx, id, normalized, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("replace library tags: %w", err)
	}
	return normalized, nil
}

// DeleteLibrary removes the library row permanently.
func (s *Service) DeleteLibrary(ctx context.Context, id string) error {
	if _, err := s.authorizeLibraryID(ctx, id); err != nil {
		return err
	}
	return s.stores.Libraries.DeleteLibrary(ctx, id)
}

// RecordLibraryView bumps the view counters. When the view happened through a
// book, bookID scopes the book_viewed chronicle event; an empty bookID still
// counts the view but leaves no chronicle trail.
func (s *Service) RecordLibraryView(ctx context.Context, id, bookID string) (library.Library, error) {
	lib, err := s.authorizeLibraryID(ctx, id)
	if err != nil {
		return library.Library{}, err
	}

	lib = library.RecordView(lib, s.now)
	if err := s.stores.Libraries.PutLibrary(ctx, lib); err != nil {
		return library.Library{}, fmt.Errorf("persist library: %w", err)
	}

	if bookID != "" {
		if err := s.recorder.LibraryViewed(ctx, lib, bookID); err != nil {
			return library.Library{}, err
		}
	}
	s.bus.Publish(ctx, []event.Event{{
		Type:        event.TypeBookViewed,
		BookID:      bookID,
		LibraryID:   lib.ID,
		PayloadJSON: library.MarshalViewPayload(lib),
		OccurredAt:  s.now().UTC(),
	}})
	return lib, nil
}
