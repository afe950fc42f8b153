package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

// MaxReserveAttempts bounds how often a line re-checks availability after
// losing a reservation race on the office it picked.
const MaxReserveAttempts = 3

// Allocator applies ledger operations to all lines of an order.
type Allocator struct {
	ledger  Ledger
	catalog Catalog
	log     zerolog.Logger
}

type AllocatorOption func(*Allocator)

// WithCatalog makes a registered SKU without stock rows count as out of
// stock instead of unknown.
func WithCatalog(c Catalog) AllocatorOption {
	return func(a *Allocator) { a.catalog = c }
}

func NewAllocator(ledger Ledger, log zerolog.Logger, opts ...AllocatorOption) *Allocator {
	a := &Allocator{ledger: ledger, log: log}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ReserveForOrder reserves every line or none: on the first failure the
// reservations already made by this call are released in reverse order.
func (a *Allocator) ReserveForOrder(ctx context.Context, tenantID, orderID string, lines []Line) ([]Allocation, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "inventory.reserve_for_order")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int("order.lines", len(lines)))

	out := make([]Allocation, 0, len(lines))
	for _, ln := range lines {
		if ln.SkuID == "" || ln.Quantity <= 0 {
			a.rollback(ctx, tenantID, orderID, out)
			return nil, fmt.Errorf("order %s line %q qty %d: %w", orderID, ln.SkuID, ln.Quantity, domain.ErrInvalidInput)
		}
		alloc, err := a.reserveLine(ctx, tenantID, ln)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "reserve failed")
			a.rollback(ctx, tenantID, orderID, out)
			return nil, fmt.Errorf("reserve order %s sku %s: %w", orderID, ln.SkuID, err)
		}
		out = append(out, alloc)
	}
	return out, nil
}

func (a *Allocator) reserveLine(ctx context.Context, tenantID string, ln Line) (Allocation, error) {
	var lastErr error
	for attempt := 0; attempt < MaxReserveAttempts; attempt++ {
		row, err := a.ledger.CheckAvailable(ctx, tenantID, ln.SkuID, ln.Quantity)
		if errors.Is(err, domain.ErrNotFound) {
			return Allocation{}, a.noCandidate(ctx, tenantID, ln)
		}
		if err != nil {
			return Allocation{}, err
		}
		_, err = a.ledger.Reserve(ctx, tenantID, ln.SkuID, row.OfficeID, ln.Quantity)
		if err == nil {
			return Allocation{SkuID: ln.SkuID, OfficeID: row.OfficeID, Quantity: ln.Quantity}, nil
		}
		if !errors.Is(err, domain.ErrInsufficientStock) {
			return Allocation{}, err
		}
		// someone else took the stock between check and reserve
		lastErr = err
	}
	return Allocation{}, lastErr
}

// noCandidate tells an unknown SKU apart from one that exists but is short.
// Without a catalog a SKU exists when it has at least one stock row.
func (a *Allocator) noCandidate(ctx context.Context, tenantID string, ln Line) error {
	var known bool
	if a.catalog != nil {
		ok, err := a.catalog.SkuExists(ctx, tenantID, ln.SkuID)
		if err != nil {
			return fmt.Errorf("look up sku %s: %w", ln.SkuID, err)
		}
		known = ok
	} else {
		rows, err := a.ledger.ListBySku(ctx, tenantID, ln.SkuID)
		if err != nil {
			return err
		}
		known = len(rows) > 0
	}
	if !known {
		return fmt.Errorf("sku %s: %w", ln.SkuID, domain.ErrNotFound)
	}
	return fmt.Errorf("no office holds %d of sku %s: %w", ln.Quantity, ln.SkuID, domain.ErrInsufficientStock)
}

func (a *Allocator) rollback(ctx context.Context, tenantID, orderID string, done []Allocation) {
	for i := len(done) - 1; i >= 0; i-- {
		al := done[i]
		if _, err := a.ledger.Release(context.WithoutCancel(ctx), tenantID, al.SkuID, al.OfficeID, al.Quantity); err != nil {
			a.log.Error().Err(err).
				Str("tenant_id", tenantID).
				Str("order_id", orderID).
				Str("sku_id", al.SkuID).
				Str("office_id", al.OfficeID).
				Int64("qty", al.Quantity).
				Msg("release during reservation rollback failed")
		}
	}
}

// ReleaseForOrder returns reserved stock of every allocation. It stops at the
// first failure; callers run it inside a unit of work so nothing is half applied.
func (a *Allocator) ReleaseForOrder(ctx context.Context, tenantID, orderID string, allocs []Allocation) error {
	ctx, span := telemetry.Tracer().Start(ctx, "inventory.release_for_order")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	for _, al := range allocs {
		if _, err := a.ledger.Release(ctx, tenantID, al.SkuID, al.OfficeID, al.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "release failed")
			return fmt.Errorf("release order %s sku %s office %s: %w", orderID, al.SkuID, al.OfficeID, err)
		}
	}
	return nil
}

// DecreaseForOrder turns every allocation's reservation into a permanent
// deduction. Same fail-fast contract as ReleaseForOrder.
func (a *Allocator) DecreaseForOrder(ctx context.Context, tenantID, orderID string, allocs []Allocation) error {
	ctx, span := telemetry.Tracer().Start(ctx, "inventory.decrease_for_order")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	for _, al := range allocs {
		if _, err := a.ledger.Decrease(ctx, tenantID, al.SkuID, al.OfficeID, al.Quantity); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "decrease failed")
			return fmt.Errorf("decrease order %s sku %s office %s: %w", orderID, al.SkuID, al.OfficeID, err)
		}
	}
	return nil
}
