// Package consumer applies the stock and status effects of order events.
// Every effect runs inside an idempotent unit, so a redelivered event is
// recognised and skipped.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/order-ledger/internal/kafka"
	"github.com/ariefcatur/order-ledger/internal/notify"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/store"
)

// StatusInvalidator drops a cached order status. redisx.StatusCache fits.
type StatusInvalidator interface {
	Invalidate(ctx context.Context, tenantID, orderID string) error
}

const eventStockSettled = "StockSettled"

type Service struct {
	proc   *idempotency.Processor[store.Tx]
	notify notify.Notifier
	cache  StatusInvalidator
	log    zerolog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithStatusCache(c StatusInvalidator) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(proc *idempotency.Processor[store.Tx], n notify.Notifier, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{proc: proc, notify: n, log: log, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handle is the kafka.Handler entry point.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		return err
	}
	return s.Dispatch(ctx, env)
}

// Dispatch routes an envelope to the handler of its variant.
func (s *Service) Dispatch(ctx context.Context, env orders.Envelope) error {
	ev, err := orders.Decode(env)
	if err != nil {
		return err
	}
	switch e := ev.(type) {
	case orders.OrderCreated:
		return s.HandleOrderCreated(ctx, env, e)
	case orders.OrderStatusChanged:
		return s.HandleStatusChanged(ctx, env, e)
	case orders.OrderCancelled:
		return s.HandleOrderCancelled(ctx, env, e)
	default:
		return fmt.Errorf("event %s: no handler for %T: %w", env.EventID, ev, domain.ErrInvalidInput)
	}
}

// HandleOrderCreated moves the order to RESERVED. An order that already left
// CREATED (cancelled before we got here) is recorded without change.
func (s *Service) HandleOrderCreated(ctx context.Context, env orders.Envelope, e orders.OrderCreated) error {
	var o orders.Order
	outcome, err := s.proc.Process(ctx, key(env), env.EventType, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = orders.ConfirmReservation(ctx, tx.Orders(), env.TenantID, e.OrderID)
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			s.log.Info().Str("tenant_id", env.TenantID).Str("order_id", e.OrderID).
				Msg("order already past CREATED, nothing to confirm")
			o, err = tx.Orders().Get(ctx, env.TenantID, e.OrderID)
		}
		return err
	})
	if err != nil {
		return err
	}
	if outcome == idempotency.Fresh {
		s.followUp(ctx, env.TenantID, o, s.notify.NotifyOrderCreated)
	}
	return nil
}

// HandleStatusChanged settles stock for completed orders. Other targets only
// notify.
func (s *Service) HandleStatusChanged(ctx context.Context, env orders.Envelope, e orders.OrderStatusChanged) error {
	var o orders.Order
	outcome, err := s.proc.Process(ctx, key(env), env.EventType, func(ctx context.Context, tx store.Tx) error {
		var err error
		if o, err = tx.Orders().Get(ctx, env.TenantID, e.OrderID); err != nil {
			return err
		}
		if e.NewStatus != orders.StatusCompleted {
			return nil
		}
		return s.settle(ctx, tx, env, o, orders.StatusCompleted, func(a *inventory.Allocator) error {
			return a.DecreaseForOrder(ctx, env.TenantID, o.ID, allocations(o))
		})
	})
	if err != nil {
		return err
	}
	if outcome == idempotency.Fresh {
		s.followUp(ctx, env.TenantID, o, s.notify.NotifyOrderStatusUpdated)
	}
	return nil
}

// HandleOrderCancelled returns the order's reservations to the ledger.
func (s *Service) HandleOrderCancelled(ctx context.Context, env orders.Envelope, e orders.OrderCancelled) error {
	var o orders.Order
	outcome, err := s.proc.Process(ctx, key(env), env.EventType, func(ctx context.Context, tx store.Tx) error {
		var err error
		if o, err = tx.Orders().Get(ctx, env.TenantID, e.OrderID); err != nil {
			return err
		}
		return s.settle(ctx, tx, env, o, orders.StatusCancelled, func(a *inventory.Allocator) error {
			return a.ReleaseForOrder(ctx, env.TenantID, o.ID, allocations(o))
		})
	})
	if err != nil {
		return err
	}
	if outcome == idempotency.Fresh {
		s.followUp(ctx, env.TenantID, o, s.notify.NotifyOrderStatusUpdated)
	}
	return nil
}

// settle runs fn only when the stored order really is in want, and at most
// once per order. An event whose transition was reverted after an ambiguous
// publish, or a late duplicate of an earlier attempt, is recorded without a
// stock change.
func (s *Service) settle(ctx context.Context, tx store.Tx, env orders.Envelope, o orders.Order, want orders.Status, fn func(*inventory.Allocator) error) error {
	l := s.log.With().Str("tenant_id", env.TenantID).Str("order_id", o.ID).Str("event_id", env.EventID).Logger()
	if o.Status != want {
		l.Warn().Str("status", string(o.Status)).Str("want", string(want)).
			Msg("order status does not match event, stock left untouched")
		return nil
	}
	out, err := tx.Processed().TryBeginProcessing(ctx, idempotency.Record{
		EventID:     settledKey(o.ID),
		TenantID:    env.TenantID,
		EventType:   eventStockSettled,
		ProcessedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("mark order %s settled: %w", o.ID, err)
	}
	if out == idempotency.AlreadyProcessed {
		l.Info().Msg("stock already settled for order")
		return nil
	}
	return fn(inventory.NewAllocator(tx.Stock(), s.log))
}

// followUp runs after commit. Failures here never undo the effect.
func (s *Service) followUp(ctx context.Context, tenantID string, o orders.Order, fn func(context.Context, orders.Order, string) error) {
	l := s.log.With().Str("tenant_id", tenantID).Str("order_id", o.ID).Logger()
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, tenantID, o.ID); err != nil {
			l.Warn().Err(err).Msg("invalidate status cache")
		}
	}
	if err := fn(ctx, o, tenantID); err != nil {
		l.Warn().Err(err).Msg("notify")
	}
}

// settledKey is the processed record marking an order's stock as settled.
func settledKey(orderID string) string { return "settled:" + orderID }

func key(env orders.Envelope) idempotency.Key {
	return idempotency.Key{EventID: env.EventID, TenantID: env.TenantID}
}

func allocations(o orders.Order) []inventory.Allocation {
	out := make([]inventory.Allocation, len(o.Items))
	for i, it := range o.Items {
		out[i] = inventory.Allocation{SkuID: it.SkuID, OfficeID: it.OfficeID, Quantity: it.Quantity}
	}
	return out
}
