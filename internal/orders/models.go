package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Item is one order line. OfficeID is the office the reservation landed on,
// so release and decrease hit the same stock row.
type Item struct {
	ProductID string          `json:"product_id"`
	SkuID     string          `json:"sku_id"`
	OfficeID  string          `json:"office_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func ComputeTotals(items []Item, shipping decimal.Decimal) Totals {
	sub := decimal.Zero
	for _, it := range items {
		sub = sub.Add(it.LineTotal())
	}
	return Totals{Subtotal: sub, Shipping: shipping, Total: sub.Add(shipping)}
}

type Order struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	CustomerID      string    `json:"customer_id"`
	Status          Status    `json:"status"`
	Items           []Item    `json:"items"`
	ShippingAddress Address   `json:"shipping_address"`
	Totals          Totals    `json:"totals"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

type ItemInput struct {
	ProductID string          `json:"product_id"`
	SkuID     string          `json:"sku_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateOrderInput struct {
	CustomerID      string          `json:"customer_id"`
	Items           []ItemInput     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
}

func (in CreateOrderInput) Validate() error {
	if in.CustomerID == "" {
		return fmt.Errorf("customer_id required: %w", domain.ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("at least one item required: %w", domain.ErrInvalidInput)
	}
	for i, it := range in.Items {
		if it.SkuID == "" {
			return fmt.Errorf("item %d: sku_id required: %w", i, domain.ErrInvalidInput)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("item %d: quantity must be positive: %w", i, domain.ErrInvalidInput)
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("item %d: negative unit_price: %w", i, domain.ErrInvalidInput)
		}
	}
	if in.ShippingCost.IsNegative() {
		return fmt.Errorf("negative shipping_cost: %w", domain.ErrInvalidInput)
	}
	return nil
}
