package orders

import (
	"context"
)

// Repository stores orders. Implementations live in postgres and memstore;
// both can be bound to a transaction or to autocommit.
type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, tenantID, orderID string) (Order, error)
	// TransitionStatus sets status to `to` only if it is currently `from`.
	// A lost compare-and-set is domain.ErrInvalidStateTransition; a missing
	// order is domain.ErrNotFound. It does not consult the transition table.
	TransitionStatus(ctx context.Context, tenantID, orderID string, from, to Status) (Order, error)
}

// Publisher hands one event to the bus and returns once it is durably
// accepted. Failures wrap domain.ErrPublish.
type Publisher interface {
	Publish(ctx context.Context, tenantID string, ev Event) (Envelope, error)
}
