package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
)

var _ idempotency.FastPath = (*Dedup)(nil)

// Dedup remembers processed event keys for a while so redeliveries can be
// skipped without opening a transaction. The processed_events table stays the
// source of truth; losing this cache only costs a round trip.
type Dedup struct {
	rdb     redis.Cmdable
	service string
	ttl     time.Duration
}

func NewDedup(rdb redis.Cmdable, service string, ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = TTLDedup
	}
	return &Dedup{rdb: rdb, service: service, ttl: ttl}
}

func (d *Dedup) key(k idempotency.Key) string {
	return fmt.Sprintf(KeyDedup, d.service, k.TenantID, k.EventID)
}

func (d *Dedup) Seen(ctx context.Context, k idempotency.Key) (bool, error) {
	return Exists(ctx, d.rdb, d.key(k))
}

func (d *Dedup) Mark(ctx context.Context, k idempotency.Key) error {
	return d.rdb.SetNX(ctx, d.key(k), "1", d.ttl).Err()
}
