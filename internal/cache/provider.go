package cache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/campusmap/routegate/internal/config"
)

// Provider owns the process-wide store selection. It is constructed at
// startup, injected into request handlers and torn down at shutdown; Reset
// exists for tests and hot reconfiguration.
type Provider struct {
	cfg config.CacheConfig
	log zerolog.Logger

	mu    sync.Mutex
	store Store
}

// NewProvider creates a Provider; the store itself is built lazily on the
// first Get so startup does not block on an unreachable Redis.
func NewProvider(cfg config.CacheConfig, log zerolog.Logger) *Provider {
	return &Provider{cfg: cfg, log: log}
}

// Get returns the selected store, constructing it on first use. Selection:
// Redis when configured and reachable, otherwise the local bbolt fallback.
// Concurrent first callers never observe two instances.
func (p *Provider) Get(ctx context.Context) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return p.store, nil
	}

	if p.cfg.RedisURL != "" {
		store, err := NewRedisStore(ctx, p.cfg.RedisURL, p.cfg.AlwaysCompress, p.log)
		if err == nil {
			p.store = store
			return p.store, nil
		}
		p.log.Warn().Err(err).Msg("redis unavailable, falling back to bbolt route cache")
	}

	store, err := NewBoltStore(p.cfg.BoltPath, p.cfg.AlwaysCompress, p.log)
	if err != nil {
		return nil, err
	}
	p.store = store
	return p.store, nil
}

// Reset closes and clears the current store so the next Get reselects.
func (p *Provider) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	err := p.store.Close()
	p.store = nil
	return err
}
