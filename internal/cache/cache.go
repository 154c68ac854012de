// Package cache holds raw get_verifications payloads between reads so that
// repeated views do not each cost a contract call.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pendergraft/urlverifier/internal/config"
)

// KeyPrefix namespaces every key this package writes.
const KeyPrefix = "urlverifier:verifications:"

// PayloadCache stores raw contract payloads keyed by contract address.
type PayloadCache interface {
	Get(ctx context.Context, contract string) (json.RawMessage, bool, error)
	Set(ctx context.Context, contract string, payload json.RawMessage) error
	Invalidate(ctx context.Context, contract string) error
	Close() error
}

// Key returns the redis key for a contract. Addresses are case-insensitive.
func Key(contract string) string {
	return KeyPrefix + strings.ToLower(contract)
}

// New returns a Redis cache when enabled, otherwise a no-op cache.
func New(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (PayloadCache, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewRedis(ctx, cfg, logger)
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (json.RawMessage, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, json.RawMessage) error        { return nil }
func (Nop) Invalidate(context.Context, string) error                  { return nil }
func (Nop) Close() error                                              { return nil }

// Redis is a PayloadCache backed by go-redis.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.Password,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	logger.Info("verification cache enabled", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", ttl)
	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

// Get returns the cached payload. A miss is not an error.
func (r *Redis) Get(ctx context.Context, contract string) (json.RawMessage, bool, error) {
	b, err := r.client.Get(ctx, Key(contract)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cached payload: %w", err)
	}
	return json.RawMessage(b), true, nil
}

// Set caches a payload for the configured TTL.
func (r *Redis) Set(ctx context.Context, contract string, payload json.RawMessage) error {
	if err := r.client.Set(ctx, Key(contract), []byte(payload), r.ttl).Err(); err != nil {
		return fmt.Errorf("caching payload: %w", err)
	}
	return nil
}

// Invalidate drops the cached payload.
func (r *Redis) Invalidate(ctx context.Context, contract string) error {
	if err := r.client.Del(ctx, Key(contract)).Err(); err != nil {
		return fmt.Errorf("invalidating cached payload: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
