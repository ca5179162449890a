package cache

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "cache.db"), true, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStoreSetGet(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()
	payload := []byte(`{"distance_m":432}`)

	if err := store.Set(ctx, "route:abc", payload, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "route:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
}

func TestBoltStoreGetMissing(t *testing.T) {
	store := newTestBoltStore(t)

	got, err := store.Get(context.Background(), "route:nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("Get of missing key = %q, want nil", got)
	}
}

func TestBoltStoreExpiryPrunesOnRead(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "route:ttl", []byte("x"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Entry expiry has second granularity; wait until it is strictly past.
	time.Sleep(1200 * time.Millisecond)

	got, err := store.Get(ctx, "route:ttl")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expired entry should be absent, got %q", got)
	}
}

func TestBoltStoreUpsert(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "route:k", []byte("old"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "route:k", []byte("new"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "route:k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get after upsert = %q, want new", got)
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := NewBoltStore(path, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	if err := store.Set(ctx, "route:persist", []byte("kept"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewBoltStore(path, true, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "route:persist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "kept" {
		t.Errorf("Get after reopen = %q, want kept", got)
	}
}

func TestBoltStoreLockExclusive(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	token, err := store.AcquireLock(ctx, "route:k", 0)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if token != "route:k" {
		t.Errorf("local lock token = %q, want the key itself", token)
	}

	// A second acquirer blocks until release or its ctx expires.
	blockedCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := store.AcquireLock(blockedCtx, "route:k", 0); err == nil {
		t.Fatal("second AcquireLock should fail while lock is held")
	}

	if err := store.ReleaseLock(ctx, "route:k", token); err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	token2, err := store.AcquireLock(ctx, "route:k", 0)
	if err != nil || token2 == "" {
		t.Fatalf("AcquireLock after release = %q, %v", token2, err)
	}
}

func TestBoltStoreLocksIndependentPerKey(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	if _, err := store.AcquireLock(ctx, "route:a", 0); err != nil {
		t.Fatalf("AcquireLock a: %v", err)
	}
	// Holding a must not serialize b.
	if _, err := store.AcquireLock(ctx, "route:b", 0); err != nil {
		t.Fatalf("AcquireLock b: %v", err)
	}
}

func TestBoltStoreReleaseNotHeldIsNoop(t *testing.T) {
	store := newTestBoltStore(t)

	if err := store.ReleaseLock(context.Background(), "route:never", "x"); err != nil {
		t.Errorf("releasing an unheld lock should be a no-op, got %v", err)
	}
}

func TestBoltStoreCloseIdempotent(t *testing.T) {
	store := newTestBoltStore(t)

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestWaitForValue(t *testing.T) {
	store := newTestBoltStore(t)
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = store.Set(ctx, "route:wait", []byte("ready"), time.Minute)
	}()

	got, err := WaitForValue(ctx, store, "route:wait", 10, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForValue: %v", err)
	}
	if string(got) != "ready" {
		t.Errorf("WaitForValue = %q, want ready", got)
	}
}

func TestWaitForValueExhausted(t *testing.T) {
	store := newTestBoltStore(t)

	got, err := WaitForValue(context.Background(), store, "route:never", 3, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForValue: %v", err)
	}
	if got != nil {
		t.Errorf("WaitForValue = %q, want nil after exhausting attempts", got)
	}
}
