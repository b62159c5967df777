package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"speech-recognition-bridge/internal/app"
	"speech-recognition-bridge/internal/config"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Application stopped with error")
		os.Exit(1)
	}
}
