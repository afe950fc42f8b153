package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/order-ledger/internal/orders"
)

type cachedStatus struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache keeps the last known status of an order for fast reads. Writers
// invalidate after a change; readers fill it on a miss.
type StatusCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStatusCache(rdb redis.Cmdable, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	return &StatusCache{rdb: rdb, ttl: ttl}
}

func statusKey(tenantID, orderID string) string {
	return fmt.Sprintf(KeyOrderStatus, tenantID, orderID)
}

// Get returns ok=false on a miss.
func (c *StatusCache) Get(ctx context.Context, tenantID, orderID string) (status orders.Status, updatedAt time.Time, ok bool, err error) {
	b, err := c.rdb.Get(ctx, statusKey(tenantID, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	var cs cachedStatus
	if err := json.Unmarshal(b, &cs); err != nil {
		return "", time.Time{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return cs.Status, cs.UpdatedAt, true, nil
}

func (c *StatusCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(cachedStatus{Status: o.Status, UpdatedAt: o.UpdatedAt})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(o.TenantID, o.ID), b, c.ttl).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, tenantID, orderID string) error {
	return c.rdb.Del(ctx, statusKey(tenantID, orderID)).Err()
}
