package app

import (
	"context"

	"github.com/wordloom/wordloom/internal/domain/event"
	apperrors "github.com/wordloom/wordloom/internal/platform/errors"
	"github.com/wordloom/wordloom/internal/storage"
)

// MaxRecentEvents bounds the recent-events read.
const MaxRecentEvents = 25

// ErrUnknownEventType indicates an event-type filter outside the closed set.
var ErrUnknownEventType = apperrors.New(apperrors.CodeValidation, "unknown event type")

// ListBookEvents pages the chronicle of one book, newest first, optionally
// filtered to a set of event types. Unknown type labels are rejected rather
// than silently matching nothing.
func (s *Service) ListBookEvents(ctx context.Context, bookID string, eventTypes []string, skip, limit int) (storage.ChroniclePage, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return storage.ChroniclePage{}, err
	}

	types := make([]event.Type, 0, len(eventTypes))
	for _, raw := range eventTypes {
		typ, ok := event.ParseType(raw)
		if !ok {
			return storage.ChroniclePage{}, ErrUnknownEventType
		}
		types = append(types, typ)
	}

	return s.stores.Chronicle.ListChronicleEvents(ctx, storage.ListChronicleEventsParams{
		BookID:     bookID,
		EventTypes: types,
		Skip:       skip,
		Limit:      limit,
	})
}

// ListRecentBookEvents returns the newest chronicle events for one book.
// The limit is clamped to 1..25.
func (s *Service) ListRecentBookEvents(ctx context.Context, bookID string, limit int) ([]event.Event, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxRecentEvents {
		limit = MaxRecentEvents
	}
	return s.stores.Chronicle.ListRecentChronicleEvents(ctx, bookID, limit)
}
