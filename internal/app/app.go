// Package app wires the concrete backends shared by the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/config"
	"github.com/ariefcatur/order-ledger/internal/consumer"
	"github.com/ariefcatur/order-ledger/internal/idempotency"
	"github.com/ariefcatur/order-ledger/internal/inventory"
	kafkax "github.com/ariefcatur/order-ledger/internal/kafka"
	"github.com/ariefcatur/order-ledger/internal/logger"
	"github.com/ariefcatur/order-ledger/internal/memstore"
	"github.com/ariefcatur/order-ledger/internal/notify"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/postgres"
	"github.com/ariefcatur/order-ledger/internal/redisx"
	"github.com/ariefcatur/order-ledger/internal/store"
)

// OpenStore returns the configured unit-of-work runner and a func that
// releases it.
func OpenStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (store.Runner, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return memstore.New(logger.Component(log, "memstore")), func() {}, nil
	case config.BackendPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if cfg.AutoSchema {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
			log.Info().Msg("schema ensured")
		}
		return postgres.NewTxRunner(pool, logger.Component(log, "postgres")), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// CatalogFor returns the SKU catalog of backends that keep one, else nil.
func CatalogFor(r store.Runner) inventory.Catalog {
	if c, ok := r.(interface{ Catalog() inventory.Catalog }); ok {
		return c.Catalog()
	}
	return nil
}

// Worker consumes every order routing key and applies the effects.
type Worker struct {
	cons *kafkax.Consumer
	svc  *consumer.Service
	log  zerolog.Logger
}

func NewWorker(cfg config.Config, runner store.Runner, rdb *redis.Client, log zerolog.Logger) *Worker {
	proc := idempotency.NewProcessor[store.Tx](runner, logger.Component(log, "idempotency"),
		idempotency.WithFastPath(redisx.NewDedup(rdb, cfg.ServiceName, cfg.DedupTTL)))
	n := notify.NewBestEffort(notify.NewRedisNotifier(rdb), logger.Component(log, "notify"))
	svc := consumer.NewService(proc, n, logger.Component(log, "consumer"),
		consumer.WithStatusCache(redisx.NewStatusCache(rdb, redisx.TTLStatusCache)))

	r := kafkax.NewReader(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.Topics())
	return &Worker{
		cons: kafkax.NewConsumer(r, cfg.Workers, logger.Component(log, "kafka")),
		svc:  svc,
		log:  log,
	}
}

// Run blocks until ctx ends or fetching fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Strs("topics", orders.Topics()).Msg("consumer started")
	return w.cons.Start(ctx, w.svc.Handle)
}
