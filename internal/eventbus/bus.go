// Package eventbus dispatches domain events to registered handlers inside a
// configurable unit of work. Handlers perform cascade updates, chronicle
// appends and search-index upserts; their failures never propagate back to
// the use case that published the event.
package eventbus

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/wordloom/wordloom/internal/domain/event"
)

// TxMode selects how handler DB work is scoped per dispatched event.
type TxMode string

const (
	// TxModeAtomic runs every handler inside one transaction; any handler
	// error aborts the remaining handlers and rolls the whole event back.
	TxModeAtomic TxMode = "atomic"
	// TxModeSavepoint runs handlers inside one outer transaction with a
	// savepoint per DB handler; a failing handler is rolled back in
	// isolation and the outer commit still succeeds.
	TxModeSavepoint TxMode = "savepoint"
	// TxModeNone opens no transaction; only pure handlers run.
	TxModeNone TxMode = "none"
)

// ParseTxMode validates a raw mode string. Empty input resolves to the
// savepoint default.
func ParseTxMode(raw string) (TxMode, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "":
		return TxModeSavepoint, nil
	case string(TxModeAtomic):
		return TxModeAtomic, nil
	case string(TxModeSavepoint):
		return TxModeSavepoint, nil
	case string(TxModeNone):
		return TxModeNone, nil
	default:
		return "", fmt.Errorf("unknown event bus tx mode %q", raw)
	}
}

// PureFunc is a handler without DB access.
type PureFunc func(ctx context.Context, evt event.Event) error

// TxFunc is a DB-bound handler; the bus manages its transaction scope.
type TxFunc func(ctx context.Context, evt event.Event, tx *sql.Tx) error

// Handler is one registered reaction to an event type. Exactly one of Pure
// and Tx is set.
type Handler struct {
	Name string
	Pure PureFunc
	Tx   TxFunc
}

// Bus dispatches events to handlers in registration order.
type Bus struct {
	sqlDB    *sql.DB
	mode     TxMode
	registry map[event.Type][]Handler
	order    []event.Type
}

// New creates a bus over the given database handle. sqlDB may be nil when the
// mode is none.
func New(sqlDB *sql.DB, mode TxMode) (*Bus, error) {
	if mode != TxModeNone && sqlDB == nil {
		return nil, fmt.Errorf("sql db is required for tx mode %q", mode)
	}
	return &Bus{
		sqlDB:    sqlDB,
		mode:     mode,
		registry: make(map[event.Type][]Handler),
	}, nil
}

// RegisterPure appends a handler without DB access for one event type.
func (b *Bus) RegisterPure(typ event.Type, name string, fn PureFunc) {
	b.register(typ, Handler{Name: name, Pure: fn})
}

// RegisterTx appends a DB-bound handler for one event type.
func (b *Bus) RegisterTx(typ event.Type, name string, fn TxFunc) {
	b.register(typ, Handler{Name: name, Tx: fn})
}

func (b *Bus) register(typ event.Type, handler Handler) {
	if b == nil {
		return
	}
	if _, ok := b.registry[typ]; !ok {
		b.order = append(b.order, typ)
	}
	b.registry[typ] = append(b.registry[typ], handler)
}

// Handlers returns the registered handlers for one type in registration order.
func (b *Bus) Handlers(typ event.Type) []Handler {
	if b == nil {
		return nil
	}
	return b.registry[typ]
}

// Publish dispatches events in the order the aggregate emitted them. Handler
// failures are logged, never returned: by the time events are published the
// originating state change has already been persisted.
func (b *Bus) Publish(ctx context.Context, events []event.Event) {
	if b == nil {
		return
	}
	for _, evt := range events {
		b.dispatch(ctx, evt)
	}
}

func (b *Bus) dispatch(ctx context.Context, evt event.Event) {
	handlers := b.registry[evt.Type]
	if len(handlers) == 0 {
		return
	}

	switch b.mode {
	case TxModeAtomic:
		b.dispatchAtomic(ctx, evt, handlers)
	case TxModeNone:
		b.dispatchNone(ctx, evt, handlers)
	default:
		b.dispatchSavepoint(ctx, evt, handlers)
	}
}

func (b *Bus) dispatchNone(ctx context.Context, evt event.Event, handlers []Handler) {
	for _, handler := range handlers {
		if handler.Pure == nil {
			log.Printf("eventbus: skipping db-bound handler %s for %s in tx mode none", handler.Name, evt.Type)
			continue
		}
		if err := handler.Pure(ctx, evt); err != nil {
			log.Printf("eventbus: handler %s failed for %s: %v", handler.Name, evt.Type, err)
		}
	}
}

func (b *Bus) dispatchAtomic(ctx context.Context, evt event.Event, handlers []Handler) {
	tx, err := b.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("eventbus: begin transaction for %s: %v", evt.Type, err)
		return
	}
	for _, handler := range handlers {
		if err := runHandler(ctx, evt, handler, tx); err != nil {
			log.Printf("eventbus: handler %s failed for %s, rolling back event: %v", handler.Name, evt.Type, err)
			_ = tx.Rollback()
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("eventbus: commit for %s: %v", evt.Type, err)
	}
}

func (b *Bus) dispatchSavepoint(ctx context.Context, evt event.Event, handlers []Handler) {
	tx, err := b.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("eventbus: begin transaction for %s: %v", evt.Type, err)
		return
	}

	failures := 0
	for i, handler := range handlers {
		if handler.Tx == nil {
			if err := runHandler(ctx, evt, handler, tx); err != nil {
				failures++
				log.Printf("eventbus: handler %s failed for %s: %v", handler.Name, evt.Type, err)
			}
			continue
		}

		savepoint := fmt.Sprintf("eventbus_h%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			failures++
			log.Printf("eventbus: savepoint for handler %s failed for %s: %v", handler.Name, evt.Type, err)
			continue
		}
		if err := handler.Tx(ctx, evt, tx); err != nil {
			failures++
			log.Printf("eventbus: handler %s failed for %s, rolling back savepoint: %v", handler.Name, evt.Type, err)
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+savepoint); rbErr != nil {
				log.Printf("eventbus: rollback to savepoint for %s: %v", evt.Type, rbErr)
			}
		}
		if _, err := tx.ExecContext(ctx, "RELEASE "+savepoint); err != nil {
			log.Printf("eventbus: release savepoint for %s: %v", evt.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("eventbus: commit for %s: %v", evt.Type, err)
		return
	}
	if failures > 0 {
		log.Printf("eventbus: event %s committed_with_errors (%d of %d handlers failed)", evt.Type, failures, len(handlers))
	}
}

func runHandler(ctx context.Context, evt event.Event, handler Handler, tx *sql.Tx) error {
	if handler.Tx != nil {
		return handler.Tx(ctx, evt, tx)
	}
	if handler.Pure != nil {
		return handler.Pure(ctx, evt)
	}
	return fmt.Errorf("handler %s has no function", handler.Name)
}
