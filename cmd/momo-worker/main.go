package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/app"
	"github.com/tapcard/tapcard-api/internal/config"
	"github.com/tapcard/tapcard-api/internal/domain/topup"
	"github.com/tapcard/tapcard-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Dur("interval", cfg.MomoPollInterval).
		Int("batch", cfg.MomoPollBatch).
		Dur("pending_ttl", cfg.MomoPendingTTL).
		Msg("Starting momo-worker")

	c, err := app.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open components")
	}
	defer c.Close()

	// Relays status events to API instances holding the websocket clients
	hub := topup.NewHub(c.Redis)
	go hub.Run()
	defer hub.Shutdown()

	service := c.TopUpService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wake chan struct{}
	if c.Redis != nil {
		wake = make(chan struct{}, 1)
		go topup.SubscribeWakeups(ctx, c.Redis, wake)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	topup.NewWorker(service, cfg.MomoPollInterval, cfg.MomoPollBatch).Run(ctx, wake)
}
