// Package cache memoizes query embeddings in Redis and coalesces concurrent
// embedding calls for the same text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cache.embedding")

// store is the subset of redis.Cmdable the cache needs.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type EmbeddingCache struct {
	rdb    store
	prefix string
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// NewEmbeddingCache namespaces keys by embedding model so switching models never
// returns vectors of the wrong space.
func NewEmbeddingCache(rdb store, model string, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		rdb:    rdb,
		prefix: "diary:embed:" + model + ":",
		ttl:    ttl,
	}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool, error) {
	ctx, span := tracer.Start(ctx, "cache.Get")
	defer span.End()

	raw, err := c.rdb.Get(ctx, c.key(text)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, fmt.Errorf("redis get embedding: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return vector, true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, text string, vector []float32) error {
	ctx, span := tracer.Start(ctx, "cache.Set",
		trace.WithAttributes(attribute.Int64("cache.ttl_ms", c.ttl.Milliseconds())))
	defer span.End()

	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(text), raw, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set embedding: %w", err)
	}
	return nil
}
