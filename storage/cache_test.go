package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type countingStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newCountingStore() *countingStore {
	return &countingStore{objects: make(map[string][]byte)}
}

func (s *countingStore) Get(_ context.Context, trackID, name string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	data, ok := s.objects[trackID+"/"+name]
	if !ok {
		return nil, "", ErrNotFound
	}
	return data, ContentType(name), nil
}

func (s *countingStore) Put(_ context.Context, trackID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[trackID+"/"+name] = data
	return nil
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func TestCachedStoreWithoutRedis(t *testing.T) {
	// nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	backend := newCountingStore()
	store := NewCachedStore(backend, rdb, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, "t1", "seg_0.ts", []byte("ts")); err != nil {
		t.Fatalf("expected write-through despite the cache being down, got %v", err)
	}

	t.Run("Reads Fall Back To The Backend", func(t *testing.T) {
		data, contentType, err := store.Get(ctx, "t1", "seg_0.ts")
		if err != nil || string(data) != "ts" || contentType != "video/mp2t" {
			t.Fatalf("unexpected object %q (%s), %v", data, contentType, err)
		}
	})

	t.Run("Missing Objects", func(t *testing.T) {
		if _, _, err := store.Get(ctx, "t1", "missing.ts"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Invalid Paths Never Reach The Backend", func(t *testing.T) {
		before := backend.count()
		if _, _, err := store.Get(ctx, "t1", "../x.ts"); err == nil {
			t.Fatalf("expected an invalid path error")
		}
		if backend.count() != before {
			t.Fatalf("expected the backend to be skipped")
		}
	})
}

// Runs against a live server when SOUNDY_TEST_REDIS (host:port) is set.
func TestCachedStoreRedis(t *testing.T) {
	addr := os.Getenv("SOUNDY_TEST_REDIS")
	if addr == "" {
		t.Skip("SOUNDY_TEST_REDIS not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	backend := newCountingStore()
	store := NewCachedStore(backend, rdb, time.Minute)
	rdb.Del(ctx, segmentKey("cached", "seg_0.ts"))

	backend.Put(ctx, "cached", "seg_0.ts", []byte("v1"))
	backend.Put(ctx, "cached", ManifestName, []byte("#EXTM3U"))

	for i := 0; i < 3; i++ {
		data, _, err := store.Get(ctx, "cached", "seg_0.ts")
		if err != nil || string(data) != "v1" {
			t.Fatalf("unexpected segment %q, %v", data, err)
		}
	}
	if got := backend.count(); got != 1 {
		t.Fatalf("expected one backend read, got %d", got)
	}

	t.Run("Put Invalidates", func(t *testing.T) {
		if err := store.Put(ctx, "cached", "seg_0.ts", []byte("v2")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		data, _, _ := store.Get(ctx, "cached", "seg_0.ts")
		if string(data) != "v2" {
			t.Fatalf("expected the new segment, got %q", data)
		}
	})

	t.Run("Manifests Are Not Cached", func(t *testing.T) {
		before := backend.count()
		store.Get(ctx, "cached", ManifestName)
		store.Get(ctx, "cached", ManifestName)
		if got := backend.count() - before; got != 2 {
			t.Fatalf("expected every manifest read to reach the backend, got %d", got)
		}
	})
}
