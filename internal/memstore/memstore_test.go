package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/store"
)

func TestInTx_RollsBackEveryWrite(t *testing.T) {
	s := seeded(t, inventory.StockRow{SkuID: "A", OfficeID: "o1", Quantity: 10, Reserved: 4})
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Stock().Decrease(ctx, tenant, "A", "o1", 4); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, orders.Order{ID: "ord-1", TenantID: tenant, Status: orders.StatusCreated}); err != nil {
			return err
		}
		if _, err := tx.Processed().TryBeginProcessing(ctx, idempotency.Record{EventID: "e-1", TenantID: tenant}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	r, err := s.Autocommit().Stock().Get(ctx, tenant, "A", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.Quantity)
	assert.Equal(t, int64(4), r.Reserved)
	assert.Zero(t, r.Version)

	_, err = s.Autocommit().Orders().Get(ctx, tenant, "ord-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, s.ProcessedCount(tenant))
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s := seeded(t, inventory.StockRow{SkuID: "A", OfficeID: "o1", Quantity: 10, Reserved: 4})
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Stock().Release(ctx, tenant, "A", "o1", 4)
		return err
	})
	require.NoError(t, err)

	r, err := s.Autocommit().Stock().Get(ctx, tenant, "A", "o1")
	require.NoError(t, err)
	assert.Zero(t, r.Reserved)
}

func TestTransitionStatus_CompareAndSet(t *testing.T) {
	s := New(zerolog.Nop())
	repo := s.Autocommit().Orders()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, orders.Order{ID: "ord-1", TenantID: tenant, Status: orders.StatusCreated, Version: 1}))

	o, err := repo.TransitionStatus(ctx, tenant, "ord-1", orders.StatusCreated, orders.StatusReserved)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReserved, o.Status)
	assert.Equal(t, int64(2), o.Version)

	_, err = repo.TransitionStatus(ctx, tenant, "ord-1", orders.StatusCreated, orders.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = repo.TransitionStatus(ctx, "t2", "ord-1", orders.StatusReserved, orders.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = repo.Create(ctx, orders.Order{ID: "ord-1", TenantID: tenant})
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)
}

func TestProcessor_RedeliveryDecreasesOnce(t *testing.T) {
	s := seeded(t, inventory.StockRow{SkuID: "A", OfficeID: "o1", Quantity: 10, Reserved: 3})
	p := idempotency.NewProcessor[store.Tx](s, zerolog.Nop(), idempotency.WithClock(func() time.Time {
		return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	}))
	key := idempotency.Key{EventID: "e-42", TenantID: tenant}
	ctx := context.Background()

	effect := func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Stock().Decrease(ctx, tenant, "A", "o1", 3)
		return err
	}
	for i := 0; i < 5; i++ {
		_, err := p.Process(ctx, key, orders.EventOrderStatusChanged, effect)
		require.NoError(t, err)
	}

	r, err := s.Autocommit().Stock().Get(ctx, tenant, "A", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Quantity)
	assert.Zero(t, r.Reserved)
	assert.Equal(t, 1, s.ProcessedCount(tenant))
}

func TestInTx_CancelledContext(t *testing.T) {
	s := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.InTx(ctx, func(context.Context, store.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
