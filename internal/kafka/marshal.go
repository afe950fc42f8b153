package kafka

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/orders"
)

const (
	HeaderEventID      = "x-event-id"
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
	HeaderTenantID     = "x-tenant-id"
	HeaderOccurredAt   = "x-occurred-at"
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Unwrap memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}

func envelopeHeaders(env orders.Envelope) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventID, Value: []byte(env.EventID)},
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
		{Key: HeaderTenantID, Value: []byte(env.TenantID)},
		{Key: HeaderOccurredAt, Value: []byte(env.OccurredAt.Format(time.RFC3339Nano))},
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// DecodeEnvelope reads the envelope from a message value. Headers fill in
// identity fields an older producer left out of the body. A message that is
// not a usable envelope is ErrInvalidInput.
func DecodeEnvelope(m kafka.Message) (orders.Envelope, error) {
	env, err := UnwrapPayload[orders.Envelope](m.Value)
	if err != nil {
		return orders.Envelope{}, fmt.Errorf("%s/%d@%d: %v: %w", m.Topic, m.Partition, m.Offset, err, domain.ErrInvalidInput)
	}
	if env.EventID == "" {
		env.EventID = header(m, HeaderEventID)
	}
	if env.EventType == "" {
		env.EventType = header(m, HeaderEventType)
	}
	if env.TenantID == "" {
		env.TenantID = header(m, HeaderTenantID)
	}
	if env.EventID == "" || env.TenantID == "" {
		return orders.Envelope{}, fmt.Errorf("%s/%d@%d: envelope without event or tenant id: %w", m.Topic, m.Partition, m.Offset, domain.ErrInvalidInput)
	}
	return env, nil
}
