package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/redisx"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusUpdated = "order.status.updated"
)

type Notifier interface {
	NotifyOrderCreated(ctx context.Context, o orders.Order, tenantID string) error
	NotifyOrderStatusUpdated(ctx context.Context, o orders.Order, tenantID string) error
}

// Notification is the message pushed to subscribers of a tenant channel.
type Notification struct {
	Type       string        `json:"type"`
	TenantID   string        `json:"tenant_id"`
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id"`
	Status     orders.Status `json:"status"`
	Total      string        `json:"total"`
	At         time.Time     `json:"at"`
}

// RedisNotifier publishes notifications on notifications:{tenant}. Delivery
// to devices is somebody else's job.
type RedisNotifier struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisNotifier(rdb redis.Cmdable) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, now: time.Now}
}

func (n *RedisNotifier) NotifyOrderCreated(ctx context.Context, o orders.Order, tenantID string) error {
	return n.publish(ctx, TypeOrderCreated, o, tenantID)
}

func (n *RedisNotifier) NotifyOrderStatusUpdated(ctx context.Context, o orders.Order, tenantID string) error {
	return n.publish(ctx, TypeOrderStatusUpdated, o, tenantID)
}

func (n *RedisNotifier) publish(ctx context.Context, typ string, o orders.Order, tenantID string) error {
	b, err := json.Marshal(Notification{
		Type:       typ,
		TenantID:   tenantID,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Total:      o.Totals.Total.StringFixed(2),
		At:         n.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, fmt.Sprintf(redisx.ChannelNotifications, tenantID), b).Err(); err != nil {
		return fmt.Errorf("publish %s notification for %s: %w", typ, o.ID, err)
	}
	return nil
}

// BestEffort never lets a notification failure reach the caller. Failures
// are logged and counted.
type BestEffort struct {
	next   Notifier
	log    zerolog.Logger
	failed metric.Int64Counter
}

func NewBestEffort(next Notifier, log zerolog.Logger) *BestEffort {
	failed, err := telemetry.Meter().Int64Counter("notifications.failed",
		metric.WithDescription("notifications that could not be handed to the channel"))
	if err != nil {
		failed = noop.Int64Counter{}
	}
	return &BestEffort{next: next, log: log, failed: failed}
}

func (b *BestEffort) NotifyOrderCreated(ctx context.Context, o orders.Order, tenantID string) error {
	b.report(ctx, TypeOrderCreated, o, tenantID, b.next.NotifyOrderCreated(ctx, o, tenantID))
	return nil
}

func (b *BestEffort) NotifyOrderStatusUpdated(ctx context.Context, o orders.Order, tenantID string) error {
	b.report(ctx, TypeOrderStatusUpdated, o, tenantID, b.next.NotifyOrderStatusUpdated(ctx, o, tenantID))
	return nil
}

func (b *BestEffort) report(ctx context.Context, typ string, o orders.Order, tenantID string, err error) {
	if err == nil {
		return
	}
	b.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", typ)))
	b.log.Warn().Err(err).
		Str("type", typ).
		Str("tenant_id", tenantID).
		Str("order_id", o.ID).
		Msg("notification dropped")
}
