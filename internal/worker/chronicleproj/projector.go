// Package chronicleproj materializes the chronicle_entries read model from
// chronicle outbox rows.
package chronicleproj

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wordloom/wordloom/internal/chronicle"
	platformotel "github.com/wordloom/wordloom/internal/platform/otel"
	"github.com/wordloom/wordloom/internal/storage"
	"github.com/wordloom/wordloom/internal/worker/outbox"
)

// ProjectionName keys the bookkeeping row in projection_status.
const ProjectionName = "chronicle_entries"

// Projector processes one chronicle outbox row at a time: load the source
// event, derive the projection entry, upsert it by event ID.
type Projector struct {
	chronicle   storage.ChronicleStore
	projections storage.ProjectionStatusStore
	now         func() time.Time
}

// NewProjector creates the chronicle projection processor.
func NewProjector(chronicleStore storage.ChronicleStore, projections storage.ProjectionStatusStore) *Projector {
	return &Projector{chronicle: chronicleStore, projections: projections, now: time.Now}
}

var _ outbox.Processor = (*Projector)(nil)

// Process applies one outbox row. Missing source events and unknown ops are
// deterministic failures; replays of already-projected rows are harmless
// because the upsert is keyed by event ID.
func (p *Projector) Process(ctx context.Context, row storage.OutboxEvent) error {
	ctx = platformotel.ExtractTraceContext(ctx, platformotel.TraceContext{
		Traceparent: row.Traceparent,
		Tracestate:  row.Tracestate,
	})

	if row.Op != storage.OutboxOpUpsert {
		return outbox.Deterministic("unknown_op", fmt.Errorf("chronicle outbox op %q", row.Op))
	}

	evt, err := p.chronicle.GetChronicleEvent(ctx, row.EntityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return outbox.Deterministic("missing_source_event", err)
		}
		return fmt.Errorf("load chronicle event %s: %w", row.EntityID, err)
	}

	entry := chronicle.EntryFromEvent(evt)
	if err := p.chronicle.UpsertChronicleEntry(ctx, entry); err != nil {
		return fmt.Errorf("upsert chronicle entry %s: %w", evt.ID, err)
	}

	p.recordProgress(ctx, evt.ID)
	return nil
}

// recordProgress updates the projection bookkeeping row. Failures here never
// fail the projection itself.
func (p *Projector) recordProgress(ctx context.Context, eventID string) {
	now := p.now().UTC()
	_ = p.projections.PutProjectionStatus(ctx, storage.ProjectionStatus{
		ProjectionName: ProjectionName,
		LastEventID:    eventID,
		LastRunAt:      &now,
		UpdatedAt:      now,
	})
}
