package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/binance"
	"github.com/cryptopulse/cryptopulse/internal/cmc"
	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/ingestor"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
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
	if err := st.EnsureIndexes(ctx, ingestor.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}

	rdb, err := events.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to stream store")
	}
	defer rdb.Close()

	bus := events.NewBus(rdb, ingestor.ServiceName)
	reg := registry.New(rdb)

	svc := kernel.New(ingestor.ServiceName, ingestor.Port, cfg, reg)
	svc.AddDependency("mongodb", st.Ping)
	svc.AddDependency("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	ing := ingestor.New(cfg,
		binance.New(cfg.Binance.APIURL),
		cmc.New(cfg.CMC.APIKey, "", cfg.DefaultTimeout),
		st.Snapshots, bus)

	if err := svc.Run(ctx, ing.Run); err != nil {
		log.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}
