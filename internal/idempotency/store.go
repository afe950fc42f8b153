package idempotency

import (
	"context"
	"time"
)

// Outcome of an attempt to claim an event for processing.
type Outcome int

const (
	Fresh Outcome = iota
	AlreadyProcessed
)

func (o Outcome) String() string {
	if o == AlreadyProcessed {
		return "already_processed"
	}
	return "fresh"
}

// Key identifies an event within a tenant. The same event id under two
// tenants is two different events.
type Key struct {
	EventID  string
	TenantID string
}

type Record struct {
	EventID     string
	TenantID    string
	EventType   string
	ProcessedAt time.Time
}

func (r Record) Key() Key { return Key{EventID: r.EventID, TenantID: r.TenantID} }

// Store persists processed-event records. TryBeginProcessing must be atomic
// with respect to concurrent callers: for one key exactly one caller ever
// sees Fresh.
type Store interface {
	TryBeginProcessing(ctx context.Context, rec Record) (Outcome, error)
}

// Scope is the transactional view handed to an effect. It must expose the
// processed-event store bound to the same transaction.
type Scope interface {
	Processed() Store
}

// UnitOfWork runs fn inside one transaction: fn returning nil commits,
// anything else rolls back every write made through tx.
type UnitOfWork[T Scope] interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx T) error) error
}

// FastPath is an optional cache consulted before a unit is opened. It never
// replaces the store as the enforcement point.
type FastPath interface {
	Seen(ctx context.Context, key Key) (bool, error)
	Mark(ctx context.Context, key Key) error
}
