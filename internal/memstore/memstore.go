// Package memstore keeps stock, orders and processed events in memory. A unit
// of work holds the store lock for its whole duration and undoes its writes on
// failure, which gives it the all-or-nothing behaviour of a DB transaction.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/store"
)

type stockKey struct{ tenant, sku, office string }

type orderKey struct{ tenant, id string }

type Store struct {
	mu        sync.Mutex
	stock     map[stockKey]*inventory.StockRow
	orders    map[orderKey]orders.Order
	processed map[idempotency.Key]idempotency.Record
	log       zerolog.Logger
	now       func() time.Time
}

var _ store.Runner = (*Store)(nil)

func New(log zerolog.Logger) *Store {
	return &Store{
		stock:     make(map[stockKey]*inventory.StockRow),
		orders:    make(map[orderKey]orders.Order),
		processed: make(map[idempotency.Key]idempotency.Record),
		log:       log,
		now:       time.Now,
	}
}

// InTx runs fn with exclusive access to the store. If fn fails every write it
// made is undone in reverse order.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &view{s: s, inTx: true}
	if err := fn(ctx, v); err != nil {
		for i := len(v.undo) - 1; i >= 0; i-- {
			v.undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) Autocommit() store.Tx { return &view{s: s} }

// view implements store.Tx. Outside a unit every call takes the lock itself.
type view struct {
	s    *Store
	inTx bool
	undo []func()
}

func (v *view) Stock() inventory.Ledger      { return ledger{v} }
func (v *view) Orders() orders.Repository    { return orderRepo{v} }
func (v *view) Processed() idempotency.Store { return processedStore{v} }

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) onRollback(fn func()) {
	if v.inTx {
		v.undo = append(v.undo, fn)
	}
}
