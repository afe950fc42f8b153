package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/orders"
)

var _ orders.Repository = (*OrderRepo)(nil)

type OrderRepo struct{ q Querier }

func NewOrderRepo(q Querier) *OrderRepo { return &OrderRepo{q: q} }

// Create inserts the order and its items in one batch. pgx runs a batch as an
// implicit transaction, so even in autocommit the order never lands without
// its items.
func (r *OrderRepo) Create(ctx context.Context, o orders.Order) error {
	b := &pgx.Batch{}
	a := o.ShippingAddress
	b.Queue(`
		INSERT INTO orders (tenant_id, id, customer_id, status,
		                    ship_line1, ship_line2, ship_city, ship_postal_code, ship_country,
		                    subtotal, shipping, total, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		o.TenantID, o.ID, o.CustomerID, string(o.Status),
		a.Line1, a.Line2, a.City, a.PostalCode, a.Country,
		o.Totals.Subtotal, o.Totals.Shipping, o.Totals.Total, o.Version, o.CreatedAt, o.UpdatedAt)
	for i, it := range o.Items {
		b.Queue(`
			INSERT INTO order_items (tenant_id, order_id, line_no, product_id, sku_id, office_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.TenantID, o.ID, i, it.ProductID, it.SkuID, it.OfficeID, it.Quantity, it.UnitPrice)
	}

	br := r.q.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("order %s already exists: %w", o.ID, domain.ErrInvalidOperation)
			}
			return fmt.Errorf("insert order: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, tenantID, orderID string) (orders.Order, error) {
	var o orders.Order
	var status string
	a := &o.ShippingAddress
	err := r.q.QueryRow(ctx, `
		SELECT tenant_id, id, customer_id, status,
		       ship_line1, ship_line2, ship_city, ship_postal_code, ship_country,
		       subtotal, shipping, total, version, created_at, updated_at
		FROM orders WHERE tenant_id = $1 AND id = $2`, tenantID, orderID).Scan(
		&o.TenantID, &o.ID, &o.CustomerID, &status,
		&a.Line1, &a.Line2, &a.City, &a.PostalCode, &a.Country,
		&o.Totals.Subtotal, &o.Totals.Shipping, &o.Totals.Total, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = orders.Status(status)

	rows, err := r.q.Query(ctx, `
		SELECT product_id, sku_id, office_id, quantity, unit_price
		FROM order_items WHERE tenant_id = $1 AND order_id = $2
		ORDER BY line_no`, tenantID, orderID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it orders.Item
		if err := rows.Scan(&it.ProductID, &it.SkuID, &it.OfficeID, &it.Quantity, &it.UnitPrice); err != nil {
			return orders.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return orders.Order{}, fmt.Errorf("read order items: %w", err)
	}
	return o, nil
}

func (r *OrderRepo) TransitionStatus(ctx context.Context, tenantID, orderID string, from, to orders.Status) (orders.Order, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE orders
		SET status = $4, version = version + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, orderID, string(from), string(to))
	if err != nil {
		return orders.Order{}, fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		cur, err := r.Get(ctx, tenantID, orderID)
		if err != nil {
			return orders.Order{}, err
		}
		return orders.Order{}, fmt.Errorf("order %s is %s, not %s: %w", orderID, cur.Status, from, domain.ErrInvalidStateTransition)
	}
	return r.Get(ctx, tenantID, orderID)
}
