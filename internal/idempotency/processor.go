package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

type Option func(*options)

type options struct {
	fast FastPath
	now  func() time.Time
}

// WithFastPath puts a cache such as the redis dedup set in front of the store.
func WithFastPath(f FastPath) Option { return func(o *options) { o.fast = f } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Processor runs an effect at most once per event key. The processed record
// and the effect's writes commit or roll back together.
type Processor[T Scope] struct {
	uow     UnitOfWork[T]
	log     zerolog.Logger
	fast    FastPath
	now     func() time.Time
	counter metric.Int64Counter
}

func NewProcessor[T Scope](uow UnitOfWork[T], log zerolog.Logger, opts ...Option) *Processor[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	counter, err := telemetry.Meter().Int64Counter("events.processed",
		metric.WithDescription("events handled by the idempotent processor, by outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("events.processed counter unavailable")
		counter = noop.Int64Counter{}
	}
	return &Processor[T]{uow: uow, log: log, fast: o.fast, now: o.now, counter: counter}
}

// Process claims key and runs effect in the same unit of work. A key that was
// already processed returns (AlreadyProcessed, nil) without running effect.
// When effect fails nothing is recorded, so a redelivery runs it again. The
// outcome is only meaningful when err is nil.
func (p *Processor[T]) Process(ctx context.Context, key Key, eventType string, effect func(ctx context.Context, tx T) error) (Outcome, error) {
	if key.EventID == "" || key.TenantID == "" {
		return Fresh, fmt.Errorf("event key %q/%q: %w", key.TenantID, key.EventID, domain.ErrInvalidInput)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "idempotency.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", key.EventID),
		attribute.String("tenant.id", key.TenantID),
		attribute.String("event.type", eventType),
	)

	l := p.log.With().
		Str("event_id", key.EventID).
		Str("tenant_id", key.TenantID).
		Str("event_type", eventType).
		Logger()

	if p.fast != nil {
		seen, err := p.fast.Seen(ctx, key)
		switch {
		case err != nil:
			l.Warn().Err(err).Msg("dedup fast path unavailable, falling back to store")
		case seen:
			p.finish(ctx, span, l, eventType, AlreadyProcessed)
			return AlreadyProcessed, nil
		}
	}

	outcome := Fresh
	err := p.uow.InTx(ctx, func(ctx context.Context, tx T) error {
		o, err := tx.Processed().TryBeginProcessing(ctx, Record{
			EventID:     key.EventID,
			TenantID:    key.TenantID,
			EventType:   eventType,
			ProcessedAt: p.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("record event %s: %w", key.EventID, err)
		}
		if o == AlreadyProcessed {
			outcome = AlreadyProcessed
			return nil
		}
		return effect(ctx, tx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "effect failed")
		p.counter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("outcome", "error"),
		))
		l.Error().Err(err).Str("kind", domain.KindOf(err).String()).Msg("event processing failed")
		return Fresh, err
	}

	if outcome == Fresh && p.fast != nil {
		if err := p.fast.Mark(ctx, key); err != nil {
			l.Warn().Err(err).Msg("dedup fast path mark failed")
		}
	}
	p.finish(ctx, span, l, eventType, outcome)
	return outcome, nil
}

func (p *Processor[T]) finish(ctx context.Context, span trace.Span, l zerolog.Logger, eventType string, o Outcome) {
	span.SetAttributes(attribute.String("outcome", o.String()))
	p.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", o.String()),
	))
	if o == AlreadyProcessed {
		l.Info().Str("outcome", o.String()).Msg("duplicate event skipped")
		return
	}
	l.Info().Str("outcome", o.String()).Msg("event processed")
}
