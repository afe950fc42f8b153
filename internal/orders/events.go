package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderCancelled     = "OrderCancelled"

	EventVersion = 1
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	TenantID      string          `json:"tenant_id"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339, UTC
	Producer      string          `json:"producer"`    // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// Event is the closed set of domain events: OrderCreated, OrderStatusChanged
// and OrderCancelled. The unexported method keeps other packages from adding
// variants.
type Event interface {
	EventType() string
	AggregateID() string
	isEvent()
}

type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderStatusChanged struct {
	OrderID   string `json:"order_id"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
}

type OrderCancelled struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

func (OrderCreated) EventType() string       { return EventOrderCreated }
func (OrderStatusChanged) EventType() string { return EventOrderStatusChanged }
func (OrderCancelled) EventType() string     { return EventOrderCancelled }

func (e OrderCreated) AggregateID() string       { return e.OrderID }
func (e OrderStatusChanged) AggregateID() string { return e.OrderID }
func (e OrderCancelled) AggregateID() string     { return e.OrderID }

func (OrderCreated) isEvent()       {}
func (OrderStatusChanged) isEvent() {}
func (OrderCancelled) isEvent()     {}

// Decode turns an envelope back into its event variant. Unknown types and
// malformed payloads are ErrInvalidInput: redelivering them will not help.
func Decode(env Envelope) (Event, error) {
	switch env.EventType {
	case EventOrderCreated:
		return decodeAs[OrderCreated](env)
	case EventOrderStatusChanged:
		return decodeAs[OrderStatusChanged](env)
	case EventOrderCancelled:
		return decodeAs[OrderCancelled](env)
	default:
		return nil, fmt.Errorf("event %s: unknown type %q: %w", env.EventID, env.EventType, domain.ErrInvalidInput)
	}
}

func decodeAs[T Event](env Envelope) (Event, error) {
	var ev T
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, fmt.Errorf("event %s: decode %s payload: %v: %w", env.EventID, env.EventType, err, domain.ErrInvalidInput)
	}
	if ev.AggregateID() == "" {
		return nil, fmt.Errorf("event %s: missing order_id: %w", env.EventID, domain.ErrInvalidInput)
	}
	return ev, nil
}
