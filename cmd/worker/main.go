// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/campusmap/routegate/internal/apperr"
	"github.com/campusmap/routegate/internal/cache"
	"github.com/campusmap/routegate/internal/config"
	"github.com/campusmap/routegate/internal/jobs"
	"github.com/campusmap/routegate/internal/ors"
	"github.com/campusmap/routegate/internal/routing"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
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
	resolver := routing.NewResolver(upstream, nil, cacheProvider, cfg.Cache, cfg.ORS.AllowedProfiles, logger)

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			"prewarm": 10,
			"default": 5,
		},
	})
	mux := asynq.NewServeMux()

	mux.HandleFunc(jobs.TaskPrewarmRoute, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.PrewarmRoutePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			logger.Error().Err(err).Msg("bad prewarm payload, dropping task")
			return nil
		}

		start := time.Now()
		_, err := resolver.ResolveByCoordinates(ctx, p.Coordinates, routing.Options{
			Profile:   p.Profile,
			RequestID: p.RequestID,
		})
		if err != nil {
			if isRetryable(err) {
				logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("prewarm failed, will retry")
				return err
			}
			logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("prewarm failed permanently, dropping task")
			return nil
		}
		logger.Info().Dur("elapsed", time.Since(start)).Msg("route prewarmed")
		return nil
	})

	logger.Info().Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

// isRetryable keeps transient upstream faults on the queue and drops
// everything caller- or data-shaped.
func isRetryable(err error) bool {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case apperr.CodeUpstreamTimeout,
		apperr.CodeUpstreamConnection,
		apperr.CodeUpstreamRateLimited,
		apperr.CodeUpstreamUnavailable:
		return true
	}
	return false
}
