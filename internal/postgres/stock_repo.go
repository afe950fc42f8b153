package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/inventory"
)

var _ inventory.Ledger = (*StockRepo)(nil)

// StockRepo is the ledger over stock_rows. Every mutation is one conditional
// UPDATE; the guard in the WHERE clause is what keeps reserved within bounds
// under concurrency, there is no read-then-write.
type StockRepo struct {
	q   Querier
	log zerolog.Logger
}

func NewStockRepo(q Querier, log zerolog.Logger) *StockRepo {
	return &StockRepo{q: q, log: log}
}

const stockCols = `tenant_id, sku_id, office_id, quantity, reserved, version, updated_at`

func scanStock(row pgx.Row) (inventory.StockRow, error) {
	var r inventory.StockRow
	err := row.Scan(&r.TenantID, &r.SkuID, &r.OfficeID, &r.Quantity, &r.Reserved, &r.Version, &r.UpdatedAt)
	return r, err
}

func (r *StockRepo) CheckAvailable(ctx context.Context, tenantID, skuID string, qty int64) (inventory.StockRow, error) {
	if err := positive(qty); err != nil {
		return inventory.StockRow{}, err
	}
	row, err := scanStock(r.q.QueryRow(ctx, `
		SELECT `+stockCols+`
		FROM stock_rows
		WHERE tenant_id = $1 AND sku_id = $2 AND quantity - reserved >= $3
		ORDER BY office_id
		LIMIT 1`, tenantID, skuID, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockRow{}, fmt.Errorf("sku %s with %d available: %w", skuID, qty, domain.ErrNotFound)
	}
	if err != nil {
		return inventory.StockRow{}, fmt.Errorf("check available: %w", err)
	}
	return row, nil
}

func (r *StockRepo) Reserve(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	row, err := r.update(ctx, `
		UPDATE stock_rows
		SET reserved = reserved + $4, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND sku_id = $2 AND office_id = $3 AND quantity - reserved >= $4
		RETURNING `+stockCols, tenantID, skuID, officeID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockRow{}, r.explain(ctx, tenantID, skuID, officeID,
			fmt.Errorf("sku %s office %s: reserve %d: %w", skuID, officeID, qty, domain.ErrInsufficientStock))
	}
	if err != nil {
		return inventory.StockRow{}, fmt.Errorf("reserve: %w", err)
	}
	return row, nil
}

func (r *StockRepo) Release(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	row, err := r.update(ctx, `
		UPDATE stock_rows
		SET reserved = reserved - $4, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND sku_id = $2 AND office_id = $3 AND reserved >= $4
		RETURNING `+stockCols, tenantID, skuID, officeID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		err = r.explain(ctx, tenantID, skuID, officeID,
			fmt.Errorf("sku %s office %s: release %d exceeds reserved: %w", skuID, officeID, qty, domain.ErrInvalidOperation))
		if errors.Is(err, domain.ErrInvalidOperation) {
			r.log.Warn().Err(err).
				Str("tenant_id", tenantID).Str("sku_id", skuID).Str("office_id", officeID).Int64("qty", qty).
				Msg("release exceeds reserved quantity")
		}
		return inventory.StockRow{}, err
	}
	if err != nil {
		return inventory.StockRow{}, fmt.Errorf("release: %w", err)
	}
	return row, nil
}

func (r *StockRepo) Decrease(ctx context.Context, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	row, err := r.update(ctx, `
		UPDATE stock_rows
		SET quantity = quantity - $4, reserved = reserved - $4, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND sku_id = $2 AND office_id = $3 AND reserved >= $4
		RETURNING `+stockCols, tenantID, skuID, officeID, qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockRow{}, r.explain(ctx, tenantID, skuID, officeID,
			fmt.Errorf("sku %s office %s: decrease %d exceeds reserved: %w", skuID, officeID, qty, domain.ErrInvalidOperation))
	}
	if err != nil {
		return inventory.StockRow{}, fmt.Errorf("decrease: %w", err)
	}
	return row, nil
}

func (r *StockRepo) update(ctx context.Context, sql string, tenantID, skuID, officeID string, qty int64) (inventory.StockRow, error) {
	if err := positive(qty); err != nil {
		return inventory.StockRow{}, err
	}
	row, err := scanStock(r.q.QueryRow(ctx, sql, tenantID, skuID, officeID, qty))
	if isCheckViolation(err) {
		return inventory.StockRow{}, fmt.Errorf("%v: %w", err, domain.ErrInvalidOperation)
	}
	return row, err
}

// explain is called when a guarded UPDATE matched nothing: either the row is
// missing or the guard failed, in which case guardErr is the answer.
func (r *StockRepo) explain(ctx context.Context, tenantID, skuID, officeID string, guardErr error) error {
	var one int
	err := r.q.QueryRow(ctx, `
		SELECT 1 FROM stock_rows WHERE tenant_id = $1 AND sku_id = $2 AND office_id = $3`,
		tenantID, skuID, officeID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("stock %s/%s: %w", skuID, officeID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup stock row: %w", err)
	}
	return guardErr
}

func (r *StockRepo) Get(ctx context.Context, tenantID, skuID, officeID string) (inventory.StockRow, error) {
	row, err := scanStock(r.q.QueryRow(ctx, `
		SELECT `+stockCols+` FROM stock_rows
		WHERE tenant_id = $1 AND sku_id = $2 AND office_id = $3`, tenantID, skuID, officeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockRow{}, fmt.Errorf("stock %s/%s: %w", skuID, officeID, domain.ErrNotFound)
	}
	if err != nil {
		return inventory.StockRow{}, fmt.Errorf("get stock: %w", err)
	}
	return row, nil
}

func (r *StockRepo) ListBySku(ctx context.Context, tenantID, skuID string) ([]inventory.StockRow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+stockCols+` FROM stock_rows
		WHERE tenant_id = $1 AND sku_id = $2
		ORDER BY office_id`, tenantID, skuID)
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	defer rows.Close()

	var out []inventory.StockRow
	for rows.Next() {
		row, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Upsert seeds a stock row. Catalog tooling owns stock levels; this exists
// for tests and local setups.
func (r *StockRepo) Upsert(ctx context.Context, row inventory.StockRow) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO stock_rows (tenant_id, sku_id, office_id, quantity, reserved)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, sku_id, office_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, reserved = EXCLUDED.reserved,
		              version = stock_rows.version + 1, updated_at = now()`,
		row.TenantID, row.SkuID, row.OfficeID, row.Quantity, row.Reserved)
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

func positive(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity %d must be positive: %w", qty, domain.ErrInvalidOperation)
	}
	return nil
}
