// Package store defines the unit of work shared by the persistence backends.
package store

import (
	"context"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	"github.com/ariefcatur/order-ledger/internal/orders"
)

// Tx is one transaction's view of every repository. Writes made through any
// of them commit or roll back together.
type Tx interface {
	Stock() inventory.Ledger
	Orders() orders.Repository
	Processed() idempotency.Store
}

// Runner opens units of work. Autocommit exposes the same repositories
// outside a transaction, each call atomic on its own.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Autocommit() Tx
}
