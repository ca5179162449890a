package cache

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var routesBucket = []byte("routes")

// BoltStore is the single-process fallback backend: entries persist in a
// local bbolt file, locks live in process memory. Locks have no TTL; a
// holder that never releases starves later waiters on that key for the
// process lifetime.
type BoltStore struct {
	db    *bolt.DB
	codec codec
	log   zerolog.Logger

	// locksGuard only covers lazy lock creation, never the hold itself,
	// so unrelated keys are not serialized.
	locksGuard sync.Mutex
	locks      map[string]chan struct{}

	closeOnce sync.Once
}

// NewBoltStore opens or creates the cache file at path.
func NewBoltStore(path string, compress bool, log zerolog.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(routesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("bbolt route cache initialized")
	return &BoltStore{
		db:    db,
		codec: codec{compress: compress, log: log},
		log:   log,
		locks: make(map[string]chan struct{}),
	}, nil
}

// entry layout: 8-byte big-endian unix expiry followed by the payload.
func encodeEntry(payload []byte, expiresAt time.Time) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.Unix()))
	copy(buf[8:], payload)
	return buf
}

func decodeEntry(raw []byte) (payload []byte, expiresAt time.Time, ok bool) {
	if len(raw) < 8 {
		return nil, time.Time{}, false
	}
	exp := time.Unix(int64(binary.BigEndian.Uint64(raw[:8])), 0)
	return raw[8:], exp, true
}

// Get returns the stored payload, pruning the entry when it has expired.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	expired := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(routesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		data, expiresAt, ok := decodeEntry(raw)
		if !ok || !expiresAt.After(time.Now()) {
			expired = true
			return nil
		}
		payload = make([]byte, len(data))
		copy(payload, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		if err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(routesBucket).Delete([]byte(key))
		}); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to prune expired cache entry")
		}
		return nil, nil
	}
	if payload == nil {
		return nil, nil
	}
	return s.codec.decode(payload), nil
}

func (s *BoltStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	data, err := s.codec.encode(payload)
	if err != nil {
		return err
	}
	entry := encodeEntry(data, time.Now().Add(ttl))
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(routesBucket).Put([]byte(key), entry)
	})
}

// lockFor lazily creates the per-key semaphore under the guard mutex.
func (s *BoltStore) lockFor(key string) chan struct{} {
	s.locksGuard.Lock()
	defer s.locksGuard.Unlock()
	sem, ok := s.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[key] = sem
	}
	return sem
}

// AcquireLock blocks until the per-key lock is free or ctx is done. The ttl
// is ignored: in-process locks live until released. The returned token is
// the key itself; exclusivity, not token comparison, is the guarantee here.
func (s *BoltStore) AcquireLock(ctx context.Context, key string, _ time.Duration) (string, error) {
	sem := s.lockFor(key)
	select {
	case sem <- struct{}{}:
		return key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReleaseLock releases the per-key lock. Calling it when the lock is not
// held is a no-op.
func (s *BoltStore) ReleaseLock(_ context.Context, key string, _ string) error {
	s.locksGuard.Lock()
	sem, ok := s.locks[key]
	s.locksGuard.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-sem:
	default:
	}
	return nil
}

func (s *BoltStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
