package orders

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusReserved, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusFailed, true},
		{StatusCreated, StatusCompleted, false},
		{StatusReserved, StatusCompleted, true},
		{StatusReserved, StatusCancelled, true},
		{StatusReserved, StatusCreated, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusReserved, false},
		{StatusFailed, StatusCreated, false},
		{Status("BOGUS"), StatusCreated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusReserved.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)

	_, err = ParseStatus("shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, TopicOrderCreated, RoutingKey(OrderCreated{OrderID: "1"}))
	assert.Equal(t, TopicOrderStatusChanged, RoutingKey(OrderStatusChanged{OrderID: "1"}))
	assert.Equal(t, TopicOrderCancelled, RoutingKey(&OrderCancelled{OrderID: "1"}))
	assert.Contains(t, Topics(), TopicOrderEvents)
}

func TestDecode(t *testing.T) {
	payload, err := json.Marshal(OrderCreated{OrderID: "42", CustomerID: "c", TotalAmount: decimal.RequireFromString("12.30")})
	require.NoError(t, err)

	ev, err := Decode(Envelope{EventID: "e", EventType: EventOrderCreated, Payload: payload})
	require.NoError(t, err)
	created, ok := ev.(OrderCreated)
	require.True(t, ok)
	assert.Equal(t, "42", created.OrderID)
	assert.True(t, decimal.RequireFromString("12.3").Equal(created.TotalAmount))

	_, err = Decode(Envelope{EventID: "e", EventType: "OrderShipped", Payload: payload})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Decode(Envelope{EventID: "e", EventType: EventOrderCancelled, Payload: json.RawMessage(`{"order_id":`)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Decode(Envelope{EventID: "e", EventType: EventOrderCancelled, Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestComputeTotals(t *testing.T) {
	items := []Item{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("2.05")},
	}
	tot := ComputeTotals(items, decimal.RequireFromString("1"))
	assert.Equal(t, "2.35", tot.Subtotal.StringFixed(2))
	assert.Equal(t, "3.35", tot.Total.StringFixed(2))
}
