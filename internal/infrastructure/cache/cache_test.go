package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type storeFake struct {
	mu      sync.Mutex
	values  map[string][]byte
	getErr  error
	lastTTL time.Duration
}

func (f *storeFake) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *storeFake) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string][]byte{}
	}
	f.values[key] = value.([]byte)
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	store := &storeFake{}
	cache := NewEmbeddingCache(store, "nomic-embed-text", time.Hour)

	if _, ok, err := cache.Get(context.Background(), "who is peter"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(context.Background(), "who is peter", []float32{0.25, -1}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := cache.Get(context.Background(), "who is peter")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[0] != 0.25 || got[1] != -1 {
		t.Fatalf("unexpected vector %v", got)
	}
	if store.lastTTL != time.Hour {
		t.Fatalf("expected ttl 1h, got %s", store.lastTTL)
	}
}

func TestEmbeddingCacheKeysByModel(t *testing.T) {
	store := &storeFake{}
	_ = NewEmbeddingCache(store, "model-a", 0).Set(context.Background(), "q", []float32{1})

	if _, ok, _ := NewEmbeddingCache(store, "model-b", 0).Get(context.Background(), "q"); ok {
		t.Fatalf("expected miss for a different model")
	}
}

func TestEmbeddingCacheSurfacesRedisErrors(t *testing.T) {
	cache := NewEmbeddingCache(&storeFake{getErr: errors.New("connection refused")}, "m", 0)
	if _, _, err := cache.Get(context.Background(), "q"); err == nil {
		t.Fatalf("expected error")
	}
}

type slowEmbedder struct {
	calls   int32
	release chan struct{}
}

func (e *slowEmbedder) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

func (e *slowEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	<-e.release
	return []float32{1, 2, 3}, nil
}

func TestCoalescingEmbedderSharesInFlightCalls(t *testing.T) {
	inner := &slowEmbedder{release: make(chan struct{})}
	embedder := NewCoalescingEmbedder(inner)

	var wg sync.WaitGroup
	results := make([][]float32, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = embedder.EmbedQuery(context.Background(), "same question")
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	if got := atomic.LoadInt32(&inner.calls); got != 1 {
		t.Fatalf("expected 1 underlying call, got %d", got)
	}
	results[0][0] = 42
	if results[1][0] != 1 {
		t.Fatalf("expected callers to receive independent copies")
	}
}
