package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/order-ledger/internal/app"
	"github.com/ariefcatur/order-ledger/internal/config"
	"github.com/ariefcatur/order-ledger/internal/httpx"
	kafkax "github.com/ariefcatur/order-ledger/internal/kafka"
	"github.com/ariefcatur/order-ledger/internal/logger"
	"github.com/ariefcatur/order-ledger/internal/orders"
	"github.com/ariefcatur/order-ledger/internal/redisx"
	"github.com/ariefcatur/order-ledger/internal/telemetry"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lg := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, Service: cfg.ServiceName})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    true,
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("telemetry setup")
	}

	// Store
	runner, closeStore, err := app.OpenStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("store")
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka publisher
	pub := kafkax.NewPublisher(kafkax.NewWriter(cfg.KafkaBrokers), cfg.ServiceName, logger.Component(lg, "publisher"))
	defer pub.Close()

	// Lifecycle & handlers
	tx := runner.Autocommit()
	lc := orders.NewLifecycle(tx.Orders(), tx.Stock(), pub, logger.Component(lg, "orders"),
		orders.WithCatalog(app.CatalogFor(runner)))
	httpLog := logger.Component(lg, "http")
	router := httpx.NewRouter(httpLog, cfg.RequestTimeout)
	(&httpx.OrdersHandler{Orders: lc, Cache: redisx.NewStatusCache(rdb, redisx.TTLStatusCache), Log: httpLog}).Register(router)
	(&httpx.StockHandler{Stock: tx.Stock(), Log: httpLog}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.EmbedConsumer {
		w := app.NewWorker(cfg, runner, rdb, lg)
		g.Go(func() error { return w.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		lg.Error().Err(err).Msg("exit")
	}

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(tctx); err != nil {
		lg.Warn().Err(err).Msg("telemetry shutdown")
	}
}
