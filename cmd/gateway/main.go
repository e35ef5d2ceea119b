package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/events"
	"github.com/cryptopulse/cryptopulse/internal/gateway"
	"github.com/cryptopulse/cryptopulse/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	config.InitLogger(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := events.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to stream store")
	}
	defer rdb.Close()

	gw := gateway.New(registry.New(rdb))
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", gateway.Port),
		Handler: gw.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Gateway shutdown failed")
		}
	}()

	log.Info().Int("port", gateway.Port).Msg("Gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Gateway failed")
	}
	log.Info().Msg("Gateway stopped")
}
