package routing

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusmap/routegate/internal/apperr"
	"github.com/campusmap/routegate/internal/cache"
	"github.com/campusmap/routegate/internal/config"
)

const (
	// defaultWaitAttempts/defaultWaitDelay bound how long a caller that
	// lost the lock race polls for the winner's cache write before calling
	// upstream itself.
	defaultWaitAttempts = 10
	defaultWaitDelay    = 250 * time.Millisecond
)

// Upstream fetches and normalizes a route from the external provider.
// Implemented by ors.Client.
type Upstream interface {
	FetchRoute(ctx context.Context, coords [][]float64, profile string) (*RouteResult, error)
}

// LocationLookup resolves map locations by id. Implemented by store.Repository.
type LocationLookup interface {
	Location(ctx context.Context, id int64) (*Location, error)
}

// Resolver is the route-resolution orchestrator: it validates input,
// executes cache-aside with per-key locking and falls back to calling the
// upstream directly whenever the cache layer is unhealthy.
type Resolver struct {
	upstream  Upstream
	locations LocationLookup
	cache     *cache.Provider
	cfg       config.CacheConfig
	allowed   []string
	log       zerolog.Logger

	waitAttempts int
	waitDelay    time.Duration

	// store bypasses the provider when set; used by tests.
	store cache.Store
}

// NewResolver wires the orchestrator. locations may be nil when only
// coordinate-based resolution is served.
func NewResolver(upstream Upstream, locations LocationLookup, cacheProvider *cache.Provider, cacheCfg config.CacheConfig, allowedProfiles []string, log zerolog.Logger) *Resolver {
	return &Resolver{
		upstream:     upstream,
		locations:    locations,
		cache:        cacheProvider,
		cfg:          cacheCfg,
		allowed:      NormalizeAllowedProfiles(allowedProfiles),
		log:          log,
		waitAttempts: defaultWaitAttempts,
		waitDelay:    defaultWaitDelay,
	}
}

// Options tune a single resolution.
type Options struct {
	// Profile is the requested routing profile; blank selects the first
	// allowed profile.
	Profile string

	// TTLOverride replaces the configured default TTL when non-nil.
	// Negative values are clamped to zero; the configured maximum always
	// applies. A resolved TTL of zero disables caching for this call.
	TTLOverride *int

	// RequestID is the correlation id attached to log lines.
	RequestID string

	// AllowedProfiles narrows the configured allow-list for this call.
	AllowedProfiles []string
}

// effectiveTTL clamps the override (or default) to the configured maximum.
func (r *Resolver) effectiveTTL(override *int) time.Duration {
	ttl := r.cfg.TTLSeconds
	if override != nil {
		ttl = *override
		if ttl < 0 {
			ttl = 0
		}
	}
	if ttl == 0 {
		return 0
	}
	if ttl > r.cfg.MaxTTLSeconds {
		ttl = r.cfg.MaxTTLSeconds
	}
	return time.Duration(ttl) * time.Second
}

func (r *Resolver) allowedProfiles(opts Options) []string {
	if len(opts.AllowedProfiles) > 0 {
		return opts.AllowedProfiles
	}
	return r.allowed
}

// ResolveByCoordinates computes a route between raw [lon, lat] pairs.
// Validation failures surface immediately; cache and lock faults are logged
// and the resolution proceeds as if no cache existed.
func (r *Resolver) ResolveByCoordinates(ctx context.Context, coords [][]float64, opts Options) (*RouteResult, error) {
	sanitized, err := ValidateCoordinates(coords)
	if err != nil {
		return nil, err
	}
	profile, err := NormalizeProfile(opts.Profile, r.allowedProfiles(opts))
	if err != nil {
		return nil, err
	}

	log := r.log
	if opts.RequestID != "" {
		log = log.With().Str("request_id", opts.RequestID).Logger()
	}

	ttl := r.effectiveTTL(opts.TTLOverride)
	store := r.cacheStore(ctx, log)
	caching := store != nil && ttl > 0

	var (
		key       string
		lockToken string
	)

	if caching {
		key = CacheKey(profile, sanitized)
		if cached := r.readCache(ctx, store, key, log); cached != nil {
			log.Info().Str("key", key).Msg("route cache hit")
			return cached, nil
		}

		lockTTL := time.Duration(r.cfg.LockTTLSeconds) * time.Second
		token, err := store.AcquireLock(ctx, key, lockTTL)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to acquire route cache lock")
		} else if token == "" {
			// Another resolution is in flight for this key: wait for its
			// write. If the wait times out we call upstream without the
			// lock; duplicate upstream calls are accepted over failing
			// the request.
			log.Info().Str("key", key).Msg("route lock busy, waiting for cached value")
			if cached := r.waitCache(ctx, store, key, log); cached != nil {
				log.Info().Str("key", key).Msg("route cache filled by concurrent request")
				return cached, nil
			}
		} else {
			lockToken = token
		}
	}

	result, err := r.upstream.FetchRoute(ctx, sanitized, profile)
	if err != nil {
		if caching && lockToken != "" {
			r.releaseLock(ctx, store, key, lockToken, log)
		}
		return nil, err
	}

	result.Origin = Endpoint{Lat: sanitized[0][1], Lng: sanitized[0][0]}
	result.Destination = Endpoint{Lat: sanitized[len(sanitized)-1][1], Lng: sanitized[len(sanitized)-1][0]}
	result.Profile = profile

	if caching {
		r.writeCache(ctx, store, key, result, ttl, log)
	}
	if lockToken != "" {
		r.releaseLock(ctx, store, key, lockToken, log)
	}

	return result.Clone(), nil
}

// ResolveByLocations resolves two location ids to coordinates, delegates to
// ResolveByCoordinates and overlays the resolved ids and names onto the
// result's endpoints.
func (r *Resolver) ResolveByLocations(ctx context.Context, fromID, toID int64, opts Options) (*RouteResult, error) {
	origin, err := r.lookupLocation(ctx, fromID, "origin")
	if err != nil {
		return nil, err
	}
	dest, err := r.lookupLocation(ctx, toID, "destination")
	if err != nil {
		return nil, err
	}

	coords := [][]float64{
		{origin.Lng, origin.Lat},
		{dest.Lng, dest.Lat},
	}
	result, err := r.ResolveByCoordinates(ctx, coords, opts)
	if err != nil {
		return nil, err
	}

	result.Origin = Endpoint{ID: origin.ID, Name: origin.Name, Lat: origin.Lat, Lng: origin.Lng}
	result.Destination = Endpoint{ID: dest.ID, Name: dest.Name, Lat: dest.Lat, Lng: dest.Lng}
	return result, nil
}

func (r *Resolver) lookupLocation(ctx context.Context, id int64, role string) (*Location, error) {
	if r.locations == nil {
		return nil, apperr.New(apperr.CodeLocationNotFound, http.StatusNotFound,
			"%s location %d not found", role, id)
	}
	loc, err := r.locations.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, apperr.New(apperr.CodeLocationNotFound, http.StatusNotFound,
			"%s location %d not found", role, id)
	}
	return loc, nil
}

// cacheStore fetches the selected store; any failure degrades to no cache.
func (r *Resolver) cacheStore(ctx context.Context, log zerolog.Logger) cache.Store {
	if r.store != nil {
		return r.store
	}
	if r.cache == nil {
		return nil
	}
	store, err := r.cache.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("route cache unavailable")
		return nil
	}
	return store
}

func (r *Resolver) readCache(ctx context.Context, store cache.Store, key string, log zerolog.Logger) *RouteResult {
	payload, err := store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to read route cache")
		return nil
	}
	return decodeResult(payload, key, log)
}

func (r *Resolver) waitCache(ctx context.Context, store cache.Store, key string, log zerolog.Logger) *RouteResult {
	payload, err := cache.WaitForValue(ctx, store, key, r.waitAttempts, r.waitDelay)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed waiting for route cache value")
		return nil
	}
	return decodeResult(payload, key, log)
}

func (r *Resolver) writeCache(ctx context.Context, store cache.Store, key string, result *RouteResult, ttl time.Duration, log zerolog.Logger) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to encode route for cache")
		return
	}
	if err := store.Set(ctx, key, payload, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to write route cache")
		return
	}
	log.Info().Str("key", key).Dur("ttl", ttl).Msg("route stored in cache")
}

func (r *Resolver) releaseLock(ctx context.Context, store cache.Store, key, token string, log zerolog.Logger) {
	if err := store.ReleaseLock(ctx, key, token); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release route cache lock")
	}
}

func decodeResult(payload []byte, key string, log zerolog.Logger) *RouteResult {
	if payload == nil {
		return nil
	}
	var result RouteResult
	if err := json.Unmarshal(payload, &result); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding undecodable route cache entry")
		return nil
	}
	return &result
}
