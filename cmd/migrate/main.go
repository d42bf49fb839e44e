package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"

	"heirloom/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "migrate").Logger()
	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := infra.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
		logger.Error().Err(err).Msg("migration failed")
		os.Exit(1)
	}
	logger.Info().Msg("migrations applied")
}
