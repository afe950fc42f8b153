package kafka

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          messageReader
	workers    int
	log        zerolog.Logger
	newBackOff func() backoff.BackOff
}

type ConsumerOption func(*Consumer)

// WithBackOff replaces the retry policy used for retryable handler errors.
func WithBackOff(fn func() backoff.BackOff) ConsumerOption {
	return func(c *Consumer) { c.newBackOff = fn }
}

// NewReader subscribes a consumer group to several topics. Offsets are only
// committed explicitly.
func NewReader(brokers []string, group string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
}

func NewConsumer(r messageReader, workers int, log zerolog.Logger, opts ...ConsumerOption) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	c := &Consumer{r: r, workers: workers, log: log, newBackOff: defaultBackOff}
	for _, o := range opts {
		o(c)
	}
	return c
}

// escalateEvery is how many failed attempts pass between error-level logs
// for one message.
const escalateEvery = 10

// defaultBackOff retries until the worker context ends.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Start fetches until ctx ends. Messages of one (topic, partition) always go
// to the same worker, so they are handled and committed in offset order.
//
// Workers run on their own context, cancelled whenever Start returns, so a
// fetch failure is reported even while a worker is still retrying.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	wctx, stopWorkers := context.WithCancel(ctx)
	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 64)
		wg.Add(1)
		go func(ch <-chan kafka.Message) {
			defer wg.Done()
			for m := range ch {
				if wctx.Err() != nil {
					continue // drain; uncommitted messages are redelivered
				}
				c.handle(wctx, h, m)
			}
		}(jobs[i])
	}
	defer func() {
		stopWorkers()
		for _, ch := range jobs {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}
		select {
		case jobs[workerFor(m.Topic, m.Partition, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func workerFor(topic string, partition, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	_, _ = h.Write([]byte(strconv.Itoa(partition)))
	return int(h.Sum32() % uint32(n))
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	ctx = telemetry.Extract(ctx, m.Headers)
	ctx, span := telemetry.Tracer().Start(ctx, "kafka.consume "+m.Topic, trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", m.Topic),
		attribute.Int("messaging.kafka.partition", m.Partition),
		attribute.Int64("messaging.kafka.offset", m.Offset),
	)

	l := c.log.With().Str("topic", m.Topic).Int("partition", m.Partition).Int64("offset", m.Offset).Logger()

	attempt, start := 0, time.Now()
	op := func() error {
		attempt++
		err := h(ctx, m)
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt%escalateEvery == 0 {
			// the worker and every partition hashed to it are stuck behind this message
			l.Error().Err(err).Int("attempt", attempt).Dur("elapsed", time.Since(start)).
				Msg("handler still failing, partition blocked")
		} else {
			l.Warn().Err(err).Int("attempt", attempt).Msg("handler failed, retrying")
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		if ctx.Err() != nil {
			// not committed: the group redelivers it after rebalance or restart
			l.Info().Err(err).Msg("stopping before message was handled")
			return
		}
		l.Error().Err(err).Str("kind", domain.KindOf(err).String()).Msg("message rejected, committing without effect")
	}

	if err := c.r.CommitMessages(ctx, m); err != nil {
		l.Error().Err(err).Msg("commit failed")
	}
}
