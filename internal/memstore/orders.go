package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/orders"
)

type orderRepo struct{ v *view }

var _ orders.Repository = orderRepo{}

func (r orderRepo) Create(ctx context.Context, o orders.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer r.v.lock()()

	k := orderKey{o.TenantID, o.ID}
	if _, ok := r.v.s.orders[k]; ok {
		return fmt.Errorf("order %s already exists: %w", o.ID, domain.ErrInvalidOperation)
	}
	o.Items = slices.Clone(o.Items)
	r.v.s.orders[k] = o
	r.v.onRollback(func() { delete(r.v.s.orders, k) })
	return nil
}

func (r orderRepo) Get(ctx context.Context, tenantID, orderID string) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	defer r.v.lock()()

	o, ok := r.v.s.orders[orderKey{tenantID, orderID}]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (r orderRepo) TransitionStatus(ctx context.Context, tenantID, orderID string, from, to orders.Status) (orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, err
	}
	defer r.v.lock()()

	k := orderKey{tenantID, orderID}
	prev, ok := r.v.s.orders[k]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if prev.Status != from {
		return orders.Order{}, fmt.Errorf("order %s is %s, not %s: %w", orderID, prev.Status, from, domain.ErrInvalidStateTransition)
	}
	next := prev
	next.Status = to
	next.Version++
	next.UpdatedAt = r.v.s.now().UTC()
	r.v.s.orders[k] = next
	r.v.onRollback(func() { r.v.s.orders[k] = prev })

	next.Items = slices.Clone(next.Items)
	return next, nil
}
