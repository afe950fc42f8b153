package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ orders.Publisher = (*Publisher)(nil)

// Publisher writes one event per call and waits for every in-sync replica to
// acknowledge it. The topic is the event's routing key.
type Publisher struct {
	w        messageWriter
	producer string
	log      zerolog.Logger
	now      func() time.Time
}

// NewWriter builds a writer without a fixed topic; each message names its own.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

func NewPublisher(w messageWriter, producer string, log zerolog.Logger) *Publisher {
	return &Publisher{w: w, producer: producer, log: log, now: time.Now}
}

func (p *Publisher) Publish(ctx context.Context, tenantID string, ev orders.Event) (orders.Envelope, error) {
	topic := orders.RoutingKey(ev)
	ctx, span := telemetry.Tracer().Start(ctx, "kafka.publish "+topic, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.EventType(),
		EventVersion:  orders.EventVersion,
		TenantID:      tenantID,
		OccurredAt:    p.now().UTC(),
		Producer:      p.producer,
		CorrelationID: ev.AggregateID(),
		Payload:       MustMarshal(ev),
	}
	if sc := span.SpanContext(); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", topic),
		attribute.String("event.id", env.EventID),
		attribute.String("tenant.id", tenantID),
	)

	msg := kafka.Message{
		Topic:   topic,
		Key:     orders.PartitionKey(ev.AggregateID()),
		Value:   MustMarshal(env),
		Headers: telemetry.Inject(ctx, envelopeHeaders(env)),
		Time:    env.OccurredAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		p.log.Error().Err(err).
			Str("topic", topic).
			Str("event_id", env.EventID).
			Str("tenant_id", tenantID).
			Str("order_id", ev.AggregateID()).
			Msg("publish failed")
		return orders.Envelope{}, fmt.Errorf("publish %s to %s: %w: %w", env.EventType, topic, domain.ErrPublish, err)
	}

	p.log.Debug().Str("topic", topic).Str("event_id", env.EventID).Str("order_id", ev.AggregateID()).Msg("event published")
	return env, nil
}

func (p *Publisher) Close() error { return p.w.Close() }
