// Package cache holds an optional Redis-backed cache of analysis
// results, keyed by snapshot content hash and mode. Everything here is
// best-effort: a broken cache degrades to recomputation, never to a
// failed request.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/rickyyue315/winmaxreturn/internal/analysis"
	"github.com/rickyyue315/winmaxreturn/internal/config"
	"github.com/rickyyue315/winmaxreturn/internal/launcher"
)

const probeName = "result-cache"

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// resultStore is the subset of redis client behavior the cache uses.
// It is implemented by the real go-redis client and by test doubles.
type resultStore interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string, ttl time.Duration) error
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realResultStore adapts a *redis.Client to the resultStore interface so
// tests can inject a fake without constructing redis command results.
type realResultStore struct {
	client *redis.Client
}

func (r *realResultStore) GetValue(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

func (r *realResultStore) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *realResultStore) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realResultStore) Close() error {
	return r.client.Close()
}

// ResultCache caches serialized analysis results. A nil *ResultCache is
// valid and means caching is disabled.
type ResultCache struct {
	ttl   time.Duration
	cb    *gobreaker.CircuitBreaker
	store resultStore
}

// newBreaker matches the fetcher's breaker settings: trip after 3
// consecutive failures, reset after 30s. Cache misses are not failures.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMiss)
		},
	})
}

// New constructs a ResultCache, or nil when no address is configured.
func New(cfg config.CacheConfig) *ResultCache {
	if cfg.Addr == "" {
		return nil
	}
	return &ResultCache{
		ttl: cfg.TTL,
		cb:  newBreaker(probeName),
		store: &realResultStore{
			client: redis.NewClient(&redis.Options{
				Addr:     cfg.Addr,
				Password: cfg.Password,
				DB:       cfg.DB,
			}),
		},
	}
}

// Key derives the cache key for a snapshot and mode. Identical uploads
// analysed in the same mode hit the same entry.
func Key(snapshot []byte, mode analysis.Mode) string {
	sum := sha256.Sum256(snapshot)
	return fmt.Sprintf("winmax:result:%x:%s", sum, mode)
}

// Get loads a cached result. ErrMiss for absent keys; other errors mean
// the cache is unhealthy.
func (c *ResultCache) Get(ctx context.Context, key string) (*analysis.Result, error) {
	val, err := c.cb.Execute(func() (any, error) {
		return c.store.GetValue(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	var result analysis.Result
	if err := json.Unmarshal([]byte(val.(string)), &result); err != nil {
		return nil, fmt.Errorf("unmarshalling cached result: %w", err)
	}
	return &result, nil
}

// Set stores a result under key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, result *analysis.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, c.store.SetValue(ctx, key, string(data), c.ttl)
	})
	return err
}

// Probe sends a PING and validates the PONG response for the deep-health
// endpoint.
func (c *ResultCache) Probe(ctx context.Context) launcher.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		pong, err := c.store.PingResult(ctx)
		if err != nil {
			return nil, err
		}
		if pong != "PONG" {
			return nil, fmt.Errorf("unexpected PING response %q", pong)
		}
		return nil, nil
	})

	result := launcher.ProbeResult{
		Name:      probeName,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// Close releases the underlying client.
func (c *ResultCache) Close() error {
	return c.store.Close()
}
