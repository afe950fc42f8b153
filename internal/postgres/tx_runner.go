package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/store"
)

var _ store.Runner = (*TxRunner)(nil)

// TxRunner opens a transaction per unit of work and hands fn repositories
// bound to it.
type TxRunner struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewTxRunner(pool *pgxpool.Pool, log zerolog.Logger) *TxRunner {
	return &TxRunner{pool: pool, log: log}
}

func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, bind(tx, r.log)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *TxRunner) Autocommit() store.Tx { return bind(r.pool, r.log) }

// Catalog is the skus table.
func (r *TxRunner) Catalog() inventory.Catalog { return NewSkuRepo(r.pool) }

type repos struct {
	stock     *StockRepo
	orders    *OrderRepo
	processed *ProcessedRepo
}

func bind(q Querier, log zerolog.Logger) repos {
	return repos{
		stock:     NewStockRepo(q, log),
		orders:    NewOrderRepo(q),
		processed: NewProcessedRepo(q),
	}
}

func (r repos) Stock() inventory.Ledger      { return r.stock }
func (r repos) Orders() orders.Repository    { return r.orders }
func (r repos) Processed() idempotency.Store { return r.processed }
