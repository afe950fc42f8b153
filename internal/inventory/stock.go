package inventory

import (
	"context"
	"fmt"
	"time"
)

// StockRow is the on-hand and reserved quantity of one SKU in one office.
// 0 <= Reserved <= Quantity holds for every persisted row.
type StockRow struct {
	TenantID  string    `json:"tenant_id"`
	SkuID     string    `json:"sku_id"`
	OfficeID  string    `json:"office_id"`
	Quantity  int64     `json:"quantity"`
	Reserved  int64     `json:"reserved"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r StockRow) Available() int64 { return r.Quantity - r.Reserved }

func (r StockRow) Validate() error {
	if r.Reserved < 0 || r.Reserved > r.Quantity {
		return fmt.Errorf("stock row %s/%s/%s violates 0 <= reserved(%d) <= quantity(%d)",
			r.TenantID, r.SkuID, r.OfficeID, r.Reserved, r.Quantity)
	}
	return nil
}

// Ledger mutates stock rows only through atomic single-row primitives.
// It does not deduplicate: calling Reserve twice reserves twice.
type Ledger interface {
	// CheckAvailable returns the row with the lowest office id whose available
	// quantity covers qty, or domain.ErrNotFound.
	CheckAvailable(ctx context.Context, tenantID, skuID string, qty int64) (StockRow, error)
	Reserve(ctx context.Context, tenantID, skuID, officeID string, qty int64) (StockRow, error)
	Release(ctx context.Context, tenantID, skuID, officeID string, qty int64) (StockRow, error)
	Decrease(ctx context.Context, tenantID, skuID, officeID string, qty int64) (StockRow, error)
	Get(ctx context.Context, tenantID, skuID, officeID string) (StockRow, error)
	ListBySku(ctx context.Context, tenantID, skuID string) ([]StockRow, error)
}

// Catalog knows which SKUs are registered, whether or not they have stock.
type Catalog interface {
	SkuExists(ctx context.Context, tenantID, skuID string) (bool, error)
}

type Line struct {
	SkuID    string
	Quantity int64
}

// Allocation records which office a line was reserved against.
type Allocation struct {
	SkuID    string `json:"sku_id"`
	OfficeID string `json:"office_id"`
	Quantity int64  `json:"quantity"`
}
