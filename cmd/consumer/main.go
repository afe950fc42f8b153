package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/order-ledger/internal/app"
	"github.com/ariefcatur/order-ledger/internal/config"
	"github.com/ariefcatur/order-ledger/internal/logger"
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
	if cfg.StoreBackend == config.BackendMemory {
		// memory state lives in the API process; use EMBED_CONSUMER there
		log.Fatal().Msg("standalone consumer needs STORE_BACKEND=postgres")
	}
	lg := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, Service: cfg.ServiceName + "-consumer"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName + "-consumer",
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    true,
	})
	if err != nil {
		lg.Fatal().Err(err).Msg("telemetry setup")
	}

	runner, closeStore, err := app.OpenStore(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("store")
	}
	defer closeStore()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	lg.Info().Str("group", cfg.ConsumerGroup).Int("workers", cfg.Workers).Msg("consumer starting")
	if err := app.NewWorker(cfg, runner, rdb, lg).Run(ctx); err != nil {
		lg.Error().Err(err).Msg("consumer exit")
	}
	lg.Info().Msg("consumer stopped")

	tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = shutdownTelemetry(tctx)
}
