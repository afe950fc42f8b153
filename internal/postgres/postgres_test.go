package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/store"
)

// livePool connects to POSTGRES_DSN and applies the schema. Each test uses a
// fresh tenant id so runs never collide.
func livePool(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := Connect(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	t.Cleanup(pool.Close)
	require.NoError(t, EnsureSchema(ctx, pool))
	return pool, "test-" + uuid.NewString()
}

func TestStockRepo_Live(t *testing.T) {
	pool, tenant := livePool(t)
	ctx := context.Background()
	repo := NewStockRepo(pool, zerolog.Nop())

	require.NoError(t, repo.Upsert(ctx, inventory.StockRow{TenantID: tenant, SkuID: "A", OfficeID: "o2", Quantity: 10}))
	require.NoError(t, repo.Upsert(ctx, inventory.StockRow{TenantID: tenant, SkuID: "A", OfficeID: "o1", Quantity: 3}))

	row, err := repo.CheckAvailable(ctx, tenant, "A", 5)
	require.NoError(t, err)
	assert.Equal(t, "o2", row.OfficeID)

	row, err = repo.Reserve(ctx, tenant, "A", "o2", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(6), row.Reserved)

	_, err = repo.Reserve(ctx, tenant, "A", "o2", 5)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	_, err = repo.Reserve(ctx, tenant, "A", "o9", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Release(ctx, tenant, "A", "o2", 7)
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	row, err = repo.Decrease(ctx, tenant, "A", "o2", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.Quantity)
	assert.Zero(t, row.Reserved)

	rows, err := repo.ListBySku(ctx, tenant, "A")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "o1", rows[0].OfficeID)
}

func TestStockRepo_ConcurrentReserve_Live(t *testing.T) {
	pool, tenant := livePool(t)
	ctx := context.Background()
	repo := NewStockRepo(pool, zerolog.Nop())
	require.NoError(t, repo.Upsert(ctx, inventory.StockRow{TenantID: tenant, SkuID: "A", OfficeID: "o1", Quantity: 10, Reserved: 6}))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Reserve(ctx, tenant, "A", "o1", 4); err == nil {
				ok.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	row, err := repo.Get(ctx, tenant, "A", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), row.Reserved)
}

func TestTxRunner_RollbackAndIdempotency_Live(t *testing.T) {
	pool, tenant := livePool(t)
	ctx := context.Background()
	runner := NewTxRunner(pool, zerolog.Nop())
	require.NoError(t, NewStockRepo(pool, zerolog.Nop()).Upsert(ctx,
		inventory.StockRow{TenantID: tenant, SkuID: "A", OfficeID: "o1", Quantity: 10, Reserved: 3}))

	p := idempotency.NewProcessor[store.Tx](runner, zerolog.Nop())
	key := idempotency.Key{EventID: uuid.NewString(), TenantID: tenant}
	boom := errors.New("boom")

	_, err := p.Process(ctx, key, orders.EventOrderStatusChanged, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Stock().Decrease(ctx, tenant, "A", "o1", 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	for i := 0; i < 3; i++ {
		_, err := p.Process(ctx, key, orders.EventOrderStatusChanged, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.Stock().Decrease(ctx, tenant, "A", "o1", 3)
			return err
		})
		require.NoError(t, err)
	}

	row, err := runner.Autocommit().Stock().Get(ctx, tenant, "A", "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.Quantity)
	assert.Zero(t, row.Reserved)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM processed_events WHERE tenant_id = $1`, tenant).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOrderRepo_Live(t *testing.T) {
	pool, tenant := livePool(t)
	ctx := context.Background()
	repo := NewOrderRepo(pool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	o := orders.Order{
		ID: uuid.NewString(), TenantID: tenant, CustomerID: "c1", Status: orders.StatusCreated,
		Items: []orders.Item{
			{ProductID: "p1", SkuID: "A", OfficeID: "o1", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
		ShippingAddress: orders.Address{Line1: "Jl. Thamrin 2", City: "Jakarta", Country: "ID"},
		CreatedAt:       now, UpdatedAt: now, Version: 1,
	}
	o.Totals = orders.ComputeTotals(o.Items, decimal.RequireFromString("2.00"))
	require.NoError(t, repo.Create(ctx, o))
	assert.ErrorIs(t, repo.Create(ctx, o), domain.ErrInvalidOperation)

	got, err := repo.Get(ctx, tenant, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jakarta", got.ShippingAddress.City)
	require.Len(t, got.Items, 1)
	assert.True(t, decimal.RequireFromString("9.99").Equal(got.Items[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("21.98").Equal(got.Totals.Total))

	got, err = repo.TransitionStatus(ctx, tenant, o.ID, orders.StatusCreated, orders.StatusReserved)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusReserved, got.Status)
	assert.Equal(t, int64(2), got.Version)

	_, err = repo.TransitionStatus(ctx, tenant, o.ID, orders.StatusCreated, orders.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = repo.Get(ctx, tenant, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSkuRepo_Live(t *testing.T) {
	pool, tenant := livePool(t)
	ctx := context.Background()
	repo := NewSkuRepo(pool)

	require.NoError(t, repo.Insert(ctx, Sku{TenantID: tenant, ID: "A", ProductID: "p1", ColorID: "red", SizeID: "M"}))
	assert.ErrorIs(t, repo.Insert(ctx, Sku{TenantID: tenant, ID: "B", ProductID: "p1", ColorID: "red", SizeID: "M"}), domain.ErrInvalidOperation)

	code := "8991234567890"
	require.NoError(t, repo.SetBarcode(ctx, tenant, "A", &code))
	s, err := repo.Get(ctx, tenant, "A")
	require.NoError(t, err)
	require.NotNil(t, s.Barcode)
	assert.Equal(t, code, *s.Barcode)

	require.NoError(t, repo.SetBarcode(ctx, tenant, "A", nil))
	s, err = repo.Get(ctx, tenant, "A")
	require.NoError(t, err)
	assert.Nil(t, s.Barcode)

	assert.ErrorIs(t, repo.SetBarcode(ctx, tenant, "zzz", &code), domain.ErrNotFound)

	ok, err := repo.SkuExists(ctx, tenant, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.SkuExists(ctx, tenant, "zzz")
	require.NoError(t, err)
	assert.False(t, ok)
}
