package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/redisx"
)

type failing struct{ calls int }

func (f *failing) NotifyOrderCreated(context.Context, orders.Order, string) error {
	f.calls++
	return errors.New("channel closed")
}

func (f *failing) NotifyOrderStatusUpdated(context.Context, orders.Order, string) error {
	f.calls++
	return errors.New("channel closed")
}

func TestBestEffort_SwallowsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	inner := &failing{}
	n := NewBestEffort(inner, zerolog.New(&buf))
	o := orders.Order{ID: "ord-1"}

	assert.NoError(t, n.NotifyOrderCreated(context.Background(), o, "t1"))
	assert.NoError(t, n.NotifyOrderStatusUpdated(context.Background(), o, "t1"))
	assert.Equal(t, 2, inner.calls)
	assert.Contains(t, buf.String(), `"order_id":"ord-1"`)
	assert.Contains(t, buf.String(), "notification dropped")
}

func TestRedisNotifier_PublishesOnTenantChannel(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redisx.New(addr)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sub := rdb.Subscribe(ctx, "notifications:t-notify")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(rdb)
	o := orders.Order{ID: "ord-9", CustomerID: "c1", Status: orders.StatusReserved,
		Totals: orders.Totals{Total: decimal.RequireFromString("12.5")}}
	require.NoError(t, n.NotifyOrderCreated(ctx, o, "t-notify"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, TypeOrderCreated, got.Type)
	assert.Equal(t, "ord-9", got.OrderID)
	assert.Equal(t, "12.50", got.Total)
	assert.Equal(t, orders.StatusReserved, got.Status)
}
