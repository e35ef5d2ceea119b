package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/dispatcher"
	"github.com/cryptopulse/cryptopulse/internal/events"
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
	if err := st.EnsureIndexes(ctx, dispatcher.ServiceName); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure indexes")
	}

	rdb, err := events.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to stream store")
	}
	defer rdb.Close()

	sender, err := dispatcher.NewTelegramSender(cfg.Telegram.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Telegram")
	}

	bus := events.NewBus(rdb, dispatcher.ServiceName)
	reg := registry.New(rdb)

	svc := kernel.New(dispatcher.ServiceName, dispatcher.Port, cfg, reg)
	svc.AddDependency("mongodb", st.Ping)
	svc.AddDependency("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	d := dispatcher.New(cfg, sender, st.Analyses, st.Signals)

	consumer := consumerName(dispatcher.ServiceName)
	streams := []string{events.PriceUpdateReady, events.SignalGenerated}
	err = svc.Run(ctx,
		func(ctx context.Context) error {
			return bus.Subscribe(ctx, streams, dispatcher.Group, consumer, d.HandleEvent)
		},
		d.RunOutlook,
	)
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
