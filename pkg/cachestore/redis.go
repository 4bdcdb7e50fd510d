package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix namespaces this store's records within the Redis keyspace.
	// Defaults to "fetchcache:".
	KeyPrefix string
	// TTL, when non-zero, expires records that are never re-fetched.
	TTL time.Duration
}

// RedisStore is a Store backed by Redis, for engines that want the cache
// shared across hosts rather than embedded.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates and connects a RedisStore. It pings the server to
// ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cachestore: failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "fetchcache:"
	}

	logger.Info().Str("redis_address", cfg.Addr).Str("key_prefix", prefix).Msg("Successfully connected to Redis.")

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "RedisStore").Logger(),
	}, nil
}

// Get returns the record for key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("cachestore: redis get %q: %w", key, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("cachestore: decoding record %q: %w", key, err)
	}
	return record, nil
}

// Put overwrites the record for key. A Redis SET is atomic, so readers see
// either the old or the new record.
func (s *RedisStore) Put(ctx context.Context, key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cachestore: encoding record %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cachestore: redis set %q: %w", key, err)
	}
	return nil
}

// Clear scans the store's key prefix and deletes every record with a single
// DEL command, which Redis executes atomically.
func (s *RedisStore) Clear(ctx context.Context) error {
	var keys []string
	it := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for it.Next(ctx) {
		keys = append(keys, it.Val())
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("cachestore: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cachestore: redis del: %w", err)
	}
	s.logger.Info().Int("records", len(keys)).Msg("Cache store cleared.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.client.Close()
}
