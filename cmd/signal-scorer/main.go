package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/kernel"
	"github.com/cryptopulse/cryptopulse/internal/registry"
	"github.com/cryptopulse/cryptopulse/internal/scorer"
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
	if err := st.EnsureIndexes(ctx, scorer.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}

	rdb, err := events.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to stream store")
	}
	defer rdb.Close()

	bus := events.NewBus(rdb, scorer.ServiceName)
	reg := registry.New(rdb)

	svc := kernel.New(scorer.ServiceName, scorer.Port, cfg, reg)
	svc.AddDependency("mongodb", st.Ping)
	svc.AddDependency("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	s := scorer.New(cfg, st.Analyses, st.Signals, bus, nil)

	consumer := consumerName(scorer.ServiceName)
	err = svc.Run(ctx, func(ctx context.Context) error {
		return bus.Subscribe(ctx, []string{events.MarketAnalysisCompleted}, scorer.Group, consumer, s.HandleEvent)
	})
	if err != nil {
		log.Error().Err(err).Msg("Service failed")
		os.Exit(1)
	}
}

func consumerName(fallback string) string {
	host, _ := os.Hostname()
	if host == "" {
		return fallback
	}
	return host
}
