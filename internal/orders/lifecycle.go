package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/inventory"
)

const defaultBatchLimit = 8

// Lifecycle drives orders through the status table and emits one event per
// accepted transition. Stock for Complete and Cancel is settled by the
// consumers of those events, not here.
type Lifecycle struct {
	orders     Repository
	alloc      *inventory.Allocator
	catalog    inventory.Catalog
	pub        Publisher
	log        zerolog.Logger
	now        func() time.Time
	batchLimit int
}

type LifecycleOption func(*Lifecycle)

func WithBatchLimit(n int) LifecycleOption {
	return func(lc *Lifecycle) {
		if n > 0 {
			lc.batchLimit = n
		}
	}
}

// WithCatalog lets CreateOrder tell an unregistered SKU from one that is out
// of stock. A nil catalog is ignored.
func WithCatalog(c inventory.Catalog) LifecycleOption {
	return func(lc *Lifecycle) { lc.catalog = c }
}

func WithNow(now func() time.Time) LifecycleOption {
	return func(lc *Lifecycle) { lc.now = now }
}

func NewLifecycle(repo Repository, ledger inventory.Ledger, pub Publisher, log zerolog.Logger, opts ...LifecycleOption) *Lifecycle {
	lc := &Lifecycle{
		orders:     repo,
		pub:        pub,
		log:        log,
		now:        time.Now,
		batchLimit: defaultBatchLimit,
	}
	for _, o := range opts {
		o(lc)
	}
	var aopts []inventory.AllocatorOption
	if lc.catalog != nil {
		aopts = append(aopts, inventory.WithCatalog(lc.catalog))
	}
	lc.alloc = inventory.NewAllocator(ledger, log, aopts...)
	return lc
}

// CreateOrder reserves stock for every item, stores the order as CREATED and
// publishes OrderCreated. If the order cannot be stored or announced the
// reservations are released again.
func (lc *Lifecycle) CreateOrder(ctx context.Context, tenantID string, in CreateOrderInput) (Order, error) {
	if tenantID == "" {
		return Order{}, fmt.Errorf("tenant required: %w", domain.ErrInvalidInput)
	}
	if err := in.Validate(); err != nil {
		return Order{}, err
	}

	orderID := uuid.NewString()
	lines := make([]inventory.Line, len(in.Items))
	for i, it := range in.Items {
		lines[i] = inventory.Line{SkuID: it.SkuID, Quantity: it.Quantity}
	}
	allocs, err := lc.alloc.ReserveForOrder(ctx, tenantID, orderID, lines)
	if err != nil {
		return Order{}, err
	}

	now := lc.now().UTC()
	items := make([]Item, len(in.Items))
	for i, it := range in.Items {
		items[i] = Item{
			ProductID: it.ProductID,
			SkuID:     it.SkuID,
			OfficeID:  allocs[i].OfficeID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	o := Order{
		ID:              orderID,
		TenantID:        tenantID,
		CustomerID:      in.CustomerID,
		Status:          StatusCreated,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		Totals:          ComputeTotals(items, in.ShippingCost),
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	l := lc.log.With().Str("tenant_id", tenantID).Str("order_id", orderID).Logger()

	if err := lc.orders.Create(ctx, o); err != nil {
		lc.compensate(ctx, l, tenantID, orderID, allocs)
		return Order{}, fmt.Errorf("save order %s: %w", orderID, err)
	}

	ev := OrderCreated{OrderID: orderID, CustomerID: o.CustomerID, TotalAmount: o.Totals.Total}
	if _, err := lc.pub.Publish(ctx, tenantID, ev); err != nil {
		lc.compensate(ctx, l, tenantID, orderID, allocs)
		if _, ferr := lc.orders.TransitionStatus(context.WithoutCancel(ctx), tenantID, orderID, StatusCreated, StatusFailed); ferr != nil {
			l.Error().Err(ferr).Msg("mark order failed after publish error")
		}
		return Order{}, fmt.Errorf("announce order %s: %w", orderID, err)
	}

	l.Info().Int("items", len(items)).Str("total", o.Totals.Total.String()).Msg("order created")
	return o, nil
}

func (lc *Lifecycle) compensate(ctx context.Context, l zerolog.Logger, tenantID, orderID string, allocs []inventory.Allocation) {
	if err := lc.alloc.ReleaseForOrder(context.WithoutCancel(ctx), tenantID, orderID, allocs); err != nil {
		l.Error().Err(err).Msg("release reservations of unsaved order")
	}
}

// ConfirmReservation moves a freshly created order to RESERVED. It emits no
// event and runs against whatever repository the caller's unit is bound to.
func ConfirmReservation(ctx context.Context, repo Repository, tenantID, orderID string) (Order, error) {
	cur, err := repo.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(cur.Status, StatusReserved) {
		return Order{}, fmt.Errorf("order %s %s -> %s: %w", orderID, cur.Status, StatusReserved, domain.ErrInvalidStateTransition)
	}
	return repo.TransitionStatus(ctx, tenantID, orderID, cur.Status, StatusReserved)
}

func (lc *Lifecycle) CompleteOrder(ctx context.Context, tenantID, orderID string) (Order, error) {
	return lc.transition(ctx, tenantID, orderID, StatusCompleted, "")
}

func (lc *Lifecycle) CancelOrder(ctx context.Context, tenantID, orderID, reason string) (Order, error) {
	return lc.transition(ctx, tenantID, orderID, StatusCancelled, reason)
}

// UpdateStatus applies any legal transition. Moving to CANCELLED announces
// OrderCancelled like CancelOrder does; every other target announces
// OrderStatusChanged.
func (lc *Lifecycle) UpdateStatus(ctx context.Context, tenantID, orderID string, target Status) (Order, error) {
	if !target.Valid() {
		return Order{}, fmt.Errorf("status %q: %w", target, domain.ErrInvalidInput)
	}
	return lc.transition(ctx, tenantID, orderID, target, "status update")
}

func (lc *Lifecycle) transition(ctx context.Context, tenantID, orderID string, to Status, reason string) (Order, error) {
	cur, err := lc.orders.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(cur.Status, to) {
		return Order{}, fmt.Errorf("order %s %s -> %s: %w", orderID, cur.Status, to, domain.ErrInvalidStateTransition)
	}
	updated, err := lc.orders.TransitionStatus(ctx, tenantID, orderID, cur.Status, to)
	if err != nil {
		return Order{}, err
	}

	var ev Event
	if to == StatusCancelled {
		ev = OrderCancelled{OrderID: orderID, CustomerID: cur.CustomerID, Reason: reason}
	} else {
		ev = OrderStatusChanged{OrderID: orderID, OldStatus: cur.Status, NewStatus: to}
	}

	l := lc.log.With().Str("tenant_id", tenantID).Str("order_id", orderID).
		Str("from", string(cur.Status)).Str("to", string(to)).Logger()

	if _, err := lc.pub.Publish(ctx, tenantID, ev); err != nil {
		if _, rerr := lc.orders.TransitionStatus(context.WithoutCancel(ctx), tenantID, orderID, to, cur.Status); rerr != nil {
			l.Error().Err(rerr).Msg("revert status after publish error")
		}
		return Order{}, fmt.Errorf("announce order %s: %w", orderID, err)
	}
	l.Info().Msg("order status changed")
	return updated, nil
}

type BatchResult struct {
	OrderID string
	Order   Order
	Err     error
}

// BatchUpdateStatus runs UpdateStatus for every id independently. One
// failing order never affects the others; results follow the input order.
func (lc *Lifecycle) BatchUpdateStatus(ctx context.Context, tenantID string, orderIDs []string, target Status) []BatchResult {
	results := make([]BatchResult, len(orderIDs))
	var g errgroup.Group
	g.SetLimit(lc.batchLimit)
	for i, id := range orderIDs {
		g.Go(func() error {
			o, err := lc.UpdateStatus(ctx, tenantID, id, target)
			results[i] = BatchResult{OrderID: id, Order: o, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		lc.log.Warn().Str("tenant_id", tenantID).Int("failed", failed).Int("total", len(results)).
			Str("target", string(target)).Msg("batch status update partially failed")
	}
	return results
}

func (lc *Lifecycle) Get(ctx context.Context, tenantID, orderID string) (Order, error) {
	return lc.orders.Get(ctx, tenantID, orderID)
}
