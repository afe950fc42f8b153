package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/inventory"
)

type Sku struct {
	TenantID  string
	ID        string
	ProductID string
	ColorID   string
	SizeID    string
	Barcode   *string
}

type SkuRepo struct{ q Querier }

var _ inventory.Catalog = (*SkuRepo)(nil)

func NewSkuRepo(q Querier) *SkuRepo { return &SkuRepo{q: q} }

// Insert registers a SKU. The (product, color, size) combination is unique
// per tenant; a duplicate is ErrInvalidOperation.
func (r *SkuRepo) Insert(ctx context.Context, s Sku) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO skus (tenant_id, id, product_id, color_id, size_id, barcode)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.TenantID, s.ID, s.ProductID, s.ColorID, s.SizeID, s.Barcode)
	if isUniqueViolation(err) {
		return fmt.Errorf("sku %s/%s/%s: %w", s.ProductID, s.ColorID, s.SizeID, domain.ErrInvalidOperation)
	}
	if err != nil {
		return fmt.Errorf("insert sku: %w", err)
	}
	return nil
}

func (r *SkuRepo) Get(ctx context.Context, tenantID, id string) (Sku, error) {
	var s Sku
	err := r.q.QueryRow(ctx, `
		SELECT tenant_id, id, product_id, color_id, size_id, barcode
		FROM skus WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&s.TenantID, &s.ID, &s.ProductID, &s.ColorID, &s.SizeID, &s.Barcode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sku{}, fmt.Errorf("sku %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return Sku{}, fmt.Errorf("get sku: %w", err)
	}
	return s, nil
}

func (r *SkuRepo) SkuExists(ctx context.Context, tenantID, id string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM skus WHERE tenant_id = $1 AND id = $2)`, tenantID, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sku exists: %w", err)
	}
	return ok, nil
}

// SetBarcode is the only mutation of a SKU. A nil barcode clears it.
func (r *SkuRepo) SetBarcode(ctx context.Context, tenantID, id string, barcode *string) error {
	tag, err := r.q.Exec(ctx, `UPDATE skus SET barcode = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, barcode)
	if err != nil {
		return fmt.Errorf("set barcode: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sku %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
