package chronicle

import (
	"fmt"

	"github.com/wordloom/wordloom/internal/domain/event"
	"github.com/wordloom/wordloom/internal/storage"
)

// ProjectionVersion versions the summary derivation rules below. Bump it when
// the summary format changes so a rebuild can distinguish old rows.
const ProjectionVersion = 1

// Summarize derives the human-readable projection line for one event.
func Summarize(evt event.Event) string {
	if evt.BlockID != "" {
		return fmt.Sprintf("%s (book=%s, block=%s)", evt.Type, evt.BookID, evt.BlockID)
	}
	return fmt.Sprintf("%s (book=%s)", evt.Type, evt.BookID)
}

// EntryFromEvent materializes the chronicle_entries row for one event.
func EntryFromEvent(evt event.Event) storage.ChronicleEntry {
	return storage.ChronicleEntry{
		ID:                evt.ID,
		EventType:         evt.Type,
		BookID:            evt.BookID,
		BlockID:           evt.BlockID,
		ActorID:           evt.ActorID,
		ActorKind:         evt.ActorKind,
		Source:            evt.Source,
		Provenance:        evt.Provenance,
		CorrelationID:     evt.CorrelationID,
		SchemaVersion:     evt.SchemaVersion,
		Summary:           Summarize(evt),
		ProjectionVersion: ProjectionVersion,
		PayloadJSON:       evt.PayloadJSON,
		OccurredAt:        evt.OccurredAt,
		CreatedAt:         evt.OccurredAt,
		UpdatedAt:         evt.OccurredAt,
	}
}
