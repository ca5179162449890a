package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes a lock key only while token still owns it, so a
// holder that outlived its TTL cannot release a lock reacquired by someone
// else.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end
`)

// RedisStore is the distributed cache backend. TTL eviction and lock expiry
// are native to Redis, so a crashed lock holder heals itself.
type RedisStore struct {
	client *redis.Client
	codec  codec
	log    zerolog.Logger
}

// NewRedisStore connects to url and verifies the server is reachable.
func NewRedisStore(ctx context.Context, url string, compress bool, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Info().Msg("redis route cache initialized")
	return &RedisStore{
		client: client,
		codec:  codec{compress: compress, log: log},
		log:    log,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.codec.decode(raw), nil
}

func (s *RedisStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	data, err := s.codec.encode(payload)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

// AcquireLock is an atomic set-if-not-exists with expiry. The token is a
// fresh random identifier checked again on release.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string, token string) error {
	err := releaseScript.Run(ctx, s.client, []string{lockKeyPrefix + key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to release redis lock")
		return err
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
