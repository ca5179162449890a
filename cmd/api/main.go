// cmd/api/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/campusmap/routegate/internal/cache"
	"github.com/campusmap/routegate/internal/config"
	"github.com/campusmap/routegate/internal/http/routes"
	"github.com/campusmap/routegate/internal/ors"
	"github.com/campusmap/routegate/internal/routing"
	"github.com/campusmap/routegate/internal/store"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Locations/connections live in the surrounding application's database;
	// without it only coordinate-based resolution is served.
	var repo *store.Repository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		repo = store.New(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, id-based endpoints disabled")
	}

	upstream, err := ors.NewClient(cfg.ORS, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build upstream client")
	}

	cacheProvider := cache.NewProvider(cfg.Cache, logger)
	defer func() {
		if err := cacheProvider.Reset(); err != nil {
			logger.Warn().Err(err).Msg("failed to close route cache")
		}
	}()

	var locations routing.LocationLookup
	if repo != nil {
		locations = repo
	}
	resolver := routing.NewResolver(upstream, locations, cacheProvider, cfg.Cache, cfg.ORS.AllowedProfiles, logger)

	queue := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer queue.Close()

	s := routes.New(routes.ServerOptions{
		Resolver: resolver,
		Repo:     repo,
		Queue:    queue,
		Cfg:      cfg,
		Log:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
