package searchpub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wordloom/wordloom/internal/storage"
	"github.com/wordloom/wordloom/internal/worker/outbox"
)

// document is the engine-side shape of one search row.
type document struct {
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	LibraryID    string    `json:"library_id,omitempty"`
	Text         string    `json:"text"`
	Snippet      string    `json:"snippet"`
	EventVersion int64     `json:"event_version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Publisher applies search outbox rows to the external engine. Per-entity
// locks keep concurrent appliers from reordering updates for one document.
type Publisher struct {
	cfg     Config
	search  storage.SearchStore
	outbox  storage.OutboxStore
	bulker  Bulker
	metrics *outbox.Metrics
	now     func() time.Time
	locks   keyedMutex
}

// NewPublisher assembles the search publisher processor.
func NewPublisher(cfg Config, search storage.SearchStore, outboxStore storage.OutboxStore, bulker Bulker, metrics *outbox.Metrics) *Publisher {
	return &Publisher{
		cfg:     cfg,
		search:  search,
		outbox:  outboxStore,
		bulker:  bulker,
		metrics: metrics,
		now:     time.Now,
	}
}

var (
	_ outbox.Processor      = (*Publisher)(nil)
	_ outbox.BatchProcessor = (*Publisher)(nil)
)

// Process applies one row with a single-item request.
func (p *Publisher) Process(ctx context.Context, row storage.OutboxEvent) error {
	key := docID(row)
	unlock := p.locks.lock(key)
	defer unlock()

	item, skip, err := p.buildItem(ctx, row)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	results, err := p.sendBulk(ctx, []BulkItem{item})
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return fmt.Errorf("bulk response has %d items, want 1", len(results))
	}
	return outcomeError(row.Op, results[0].Status)
}

// ProcessBatch applies a claimed batch. In bulk mode the whole batch coalesces
// into _bulk requests with per-item outcomes; otherwise rows go one by one.
func (p *Publisher) ProcessBatch(ctx context.Context, rows []storage.OutboxEvent) []outbox.Outcome {
	if !p.cfg.UseESBulk {
		outcomes := make([]outbox.Outcome, 0, len(rows))
		for _, row := range rows {
			outcomes = append(outcomes, outbox.Outcome{ID: row.ID, Err: p.Process(ctx, row)})
		}
		return outcomes
	}

	// Apply updates for one entity in version order even when the claim
	// interleaved entities.
	sorted := make([]storage.OutboxEvent, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if ki, kj := docID(sorted[i]), docID(sorted[j]); ki != kj {
			return ki < kj
		}
		return sorted[i].EventVersion < sorted[j].EventVersion
	})

	p.renewLeases(ctx, sorted)

	var outcomes []outbox.Outcome
	for start := 0; start < len(sorted); start += p.cfg.BulkSize {
		end := start + p.cfg.BulkSize
		if end > len(sorted) {
			end = len(sorted)
		}
		outcomes = append(outcomes, p.sendChunk(ctx, sorted[start:end])...)
	}
	return outcomes
}

func (p *Publisher) sendChunk(ctx context.Context, rows []storage.OutboxEvent) []outbox.Outcome {
	outcomes := make([]outbox.Outcome, 0, len(rows))

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, docID(row))
	}
	unlock := p.locks.lockAll(keys)
	defer unlock()

	var items []BulkItem
	var sendRows []storage.OutboxEvent
	for _, row := range rows {
		item, skip, err := p.buildItem(ctx, row)
		if err != nil {
			outcomes = append(outcomes, outbox.Outcome{ID: row.ID, Err: err})
			continue
		}
		if skip {
			outcomes = append(outcomes, outbox.Outcome{ID: row.ID})
			continue
		}
		items = append(items, item)
		sendRows = append(sendRows, row)
	}
	if len(items) == 0 {
		return outcomes
	}

	results, err := p.sendBulk(ctx, items)
	if err != nil {
		p.metrics.BulkRequests.WithLabelValues("failed").Inc()
		for _, row := range sendRows {
			outcomes = append(outcomes, outbox.Outcome{ID: row.ID, Err: err})
		}
		return outcomes
	}
	if len(results) != len(sendRows) {
		err := fmt.Errorf("bulk response has %d items, want %d", len(results), len(sendRows))
		p.metrics.BulkRequests.WithLabelValues("failed").Inc()
		for _, row := range sendRows {
			outcomes = append(outcomes, outbox.Outcome{ID: row.ID, Err: err})
		}
		return outcomes
	}

	failures := 0
	for i, row := range sendRows {
		class := classifyStatus(row.Op, results[i].Status)
		p.metrics.BulkItems.WithLabelValues(row.Op, class).Inc()
		outcomeErr := outcomeError(row.Op, results[i].Status)
		if outcomeErr != nil {
			failures++
		}
		outcomes = append(outcomes, outbox.Outcome{ID: row.ID, Err: outcomeErr})
	}
	switch {
	case failures == 0:
		p.metrics.BulkRequests.WithLabelValues("success").Inc()
	case failures == len(sendRows):
		p.metrics.BulkRequests.WithLabelValues("failed").Inc()
	default:
		p.metrics.BulkRequests.WithLabelValues("partial").Inc()
	}
	return outcomes
}

// buildItem turns one row into a bulk item. An upsert whose search_index row
// has vanished is acked without an external call: a later delete superseded it.
func (p *Publisher) buildItem(ctx context.Context, row storage.OutboxEvent) (BulkItem, bool, error) {
	if row.Op == storage.OutboxOpDelete {
		return BulkItem{Op: "delete", DocID: docID(row)}, false, nil
	}

	doc, err := p.search.GetSearchDocument(ctx, row.EntityType, row.EntityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return BulkItem{}, true, nil
		}
		return BulkItem{}, false, fmt.Errorf("load search document %s: %w", docID(row), err)
	}

	return BulkItem{
		Op:    "index",
		DocID: docID(row),
		Doc: document{
			EntityType:   doc.EntityType,
			EntityID:     doc.EntityID,
			LibraryID:    doc.LibraryID,
			Text:         doc.Text,
			Snippet:      doc.Snippet,
			EventVersion: doc.EventVersion,
			UpdatedAt:    doc.UpdatedAt,
		},
	}, false, nil
}

// renewLeases extends the batch's leases before the external call so a slow
// engine round-trip cannot trigger a premature reclaim.
func (p *Publisher) renewLeases(ctx context.Context, rows []storage.OutboxEvent) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	leaseUntil := p.now().UTC().Add(p.cfg.Loop.Lease())
	if err := p.outbox.RenewOutboxLeases(ctx, storage.OutboxKindSearch, p.cfg.Loop.WorkerID, ids, leaseUntil); err != nil {
		// A failed renewal is not fatal: the rows are still leased until the
		// original deadline.
		return
	}
}

func (p *Publisher) sendBulk(ctx context.Context, items []BulkItem) ([]BulkResult, error) {
	start := p.now()
	results, err := p.bulker.Bulk(ctx, items)
	p.metrics.BulkDuration.Observe(p.now().Sub(start).Seconds())
	return results, err
}

// outcomeError maps one bulk-item status to the ack semantics the loop expects.
func outcomeError(op string, status int) error {
	switch classifyStatus(op, status) {
	case "success":
		return nil
	case "transient":
		return fmt.Errorf("search engine returned %d", status)
	default:
		return outbox.Deterministic("es_permanent", fmt.Errorf("search engine returned %d", status))
	}
}

func docID(row storage.OutboxEvent) string {
	return row.EntityType + ":" + row.EntityID
}

// keyedMutex serializes work per document key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// lockAll acquires a set of keys in sorted order so two batches can never
// deadlock on overlapping keys.
func (k *keyedMutex) lockAll(keys []string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	unlocks := make([]func(), 0, len(unique))
	for _, key := range unique {
		unlocks = append(unlocks, k.lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
