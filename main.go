package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/r3hensler/base-client-server/internal/config"
	"github.com/r3hensler/base-client-server/internal/db"
	"github.com/r3hensler/base-client-server/internal/handler"
	"github.com/r3hensler/base-client-server/internal/service"
	"github.com/rs/zerolog"
)

// @title base-client-server auth API
// @version 1.0
// @description Cookie-based authentication backend with rotating refresh tokens.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Env == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pg.Close()

	if err := pg.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("schema migration failed")
	}

	// A missing or weak signing secret must stop the process before the
	// listener comes up.
	svc, err := service.NewAuthService(pg, pg, cfg.Env, cfg.Auth, cfg.Cookie, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth service init failed")
	}

	limiter, err := service.NewRateLimiter(cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limiter init failed")
	}
	if limiter == nil {
		logger.Warn().Msg("REDIS_ADDR not set, rate limiting disabled")
	}

	router := handler.NewRouter(cfg, svc, limiter)

	logger.Info().Str("addr", cfg.Listen).Str("env", cfg.Env).Msg("listening")
	if err := router.Run(cfg.Listen); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
