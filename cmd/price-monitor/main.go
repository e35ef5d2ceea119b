package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/binance"
	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
	"github.com/cryptopulse/cryptopulse/internal/monitor"
	"github.com/cryptopulse/cryptopulse/internal/registry"
	"github.com/cryptopulse/cryptopulse/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	st, err := store.Connect(ctx, &cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to document store")
	}
	defer st.Close(context.Background())
	if err := st.EnsureIndexes(ctx, monitor.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}

	rdb, err := events.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to stream store")
	}
	defer rdb.Close()

	bus := events.NewBus(rdb, monitor.ServiceName)
	reg := registry.New(rdb)

	svc := kernel.New(monitor.ServiceName, monitor.Port, cfg, reg)
	svc.AddDependency("mongodb", st.Ping)
	svc.AddDependency("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	mon := monitor.New(cfg, binance.New(cfg.Binance.APIURL), st.PriceUpdates, bus)

	if err := svc.Run(ctx, mon.Run); err != nil {
		log.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}
