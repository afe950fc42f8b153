package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/inventory"
)

// Put seeds or replaces a stock row. Catalog management is out of scope, so
// this is how tests and the memory backend get stock.
func (s *Store) Put(row inventory.StockRow) error {
	if row.TenantID == "" || row.SkuID == "" || row.OfficeID == "" {
		return fmt.Errorf("stock row key incomplete: %w", domain.ErrInvalidInput)
	}
	if err := row.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = s.now().UTC()
	}
	s.stock[stockKey{row.TenantID, row.SkuID, row.OfficeID}] = &row
	return nil
}

type ledger struct{ v *view }

var _ inventory.Ledger = ledger{}

func (l ledger) CheckAvailable(ctx context.Context, tenantID, skuID string, qty int64) (inventory.StockRow, error) {
	if err := positive(qty); err != nil {
		return inventory.StockRow{}, err
	}
	if err := ctx.Err(); err != nil {
		return inventory.StockRow{}, err
	}
	defer l.v.lock()()

	var best *inventory.StockRow
	for k, r := range l.v.s.stock {
		if k.tenant != tenantID || k.sku != skuID || r.Available() < qty {
			continue
		}
		if best == nil || r.OfficeID < best.OfficeID {
			best = r
		}
	}
	if best == nil {
		return inventory.StockRow{}, fmt.Errorf("sku %s with %d available: %w", skuID, qty, domain.ErrNotFound)
	}
	return *best, nil
}

func (l ledger) Reserve(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	return l.mutate(ctx, tenantID, skuID, officeID, qty, func(r *inventory.StockRow) error {
		if r.Available() < qty {
			return fmt.Errorf("sku %s office %s: available %d < %d: %w", skuID, officeID, r.Available(), qty, domain.ErrInsufficientStock)
		}
		r.Reserved += qty
		return nil
	})
}

func (l ledger) Release(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	return l.mutate(ctx, tenantID, skuID, officeID, qty, func(r *inventory.StockRow) error {
		if r.Reserved < qty {
			l.v.s.log.Warn().
				Str("tenant_id", tenantID).Str("sku_id", skuID).Str("office_id", officeID).
				Int64("reserved", r.Reserved).Int64("qty", qty).
				Msg("release exceeds reserved quantity")
			return fmt.Errorf("sku %s office %s: release %d > reserved %d: %w", skuID, officeID, qty, r.Reserved, domain.ErrInvalidOperation)
		}
		r.Reserved -= qty
		return nil
	})
}

func (l ledger) Decrease(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	return l.mutate(ctx, tenantID, skuID, officeID, qty, func(r *inventory.StockRow) error {
		if r.Reserved < qty {
			return fmt.Errorf("sku %s office %s: decrease %d > reserved %d: %w", skuID, officeID, qty, r.Reserved, domain.ErrInvalidOperation)
		}
		r.Quantity -= qty
		r.Reserved -= qty
		return nil
	})
}

// mutate applies fn to a copy of the row and stores it only when fn succeeds,
// so a rejected operation leaves the row untouched.
func (l ledger) mutate(ctx context.Context, tenantID, skuID, officeID string, qty int64, fn func(*inventory.StockRow) error) (inventory.StockRow, error) {
	if err := positive(qty); err != nil {
		return inventory.StockRow{}, err
	}
	if err := ctx.Err(); err != nil {
		return inventory.StockRow{}, err
	}
	defer l.v.lock()()

	k := stockKey{tenantID, skuID, officeID}
	cur, ok := l.v.s.stock[k]
	if !ok {
		return inventory.StockRow{}, fmt.Errorf("stock %s/%s: %w", skuID, officeID, domain.ErrNotFound)
	}
	next := *cur
	if err := fn(&next); err != nil {
		return inventory.StockRow{}, err
	}
	if err := next.Validate(); err != nil {
		return inventory.StockRow{}, fmt.Errorf("%v: %w", err, domain.ErrInvalidOperation)
	}
	next.Version++
	next.UpdatedAt = l.v.s.now().UTC()

	prev := *cur
	*cur = next
	l.v.onRollback(func() { *cur = prev })
	return next, nil
}

func (l ledger) Get(ctx context.Context, tenantID, skuID, officeID string) (inventory.StockRow, error) {
	if err := ctx.Err(); err != nil {
		return inventory.StockRow{}, err
	}
	defer l.v.lock()()
	r, ok := l.v.s.stock[stockKey{tenantID, skuID, officeID}]
	if !ok {
		return inventory.StockRow{}, fmt.Errorf("stock %s/%s: %w", skuID, officeID, domain.ErrNotFound)
	}
	return *r, nil
}

func (l ledger) ListBySku(ctx context.Context, tenantID, skuID string) ([]inventory.StockRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.v.lock()()
	var out []inventory.StockRow
	for k, r := range l.v.s.stock {
		if k.tenant == tenantID && k.sku == skuID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfficeID < out[j].OfficeID })
	return out, nil
}

func positive(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity %d must be positive: %w", qty, domain.ErrInvalidOperation)
	}
	return nil
}
