// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
)

// DefaultRedisKeyPrefix namespaces lock keys in a shared Redis.
const DefaultRedisKeyPrefix = "meeting-transcript:idempotency:"

// RedisLockStore keeps idempotency locks in Redis with SETNX and a per-key expiry.
type RedisLockStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ domain.LockStore = (*RedisLockStore)(nil)

// NewRedisLockStore creates a lock store whose keys expire after ttl.
func NewRedisLockStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLockStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisLockStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisLockStore) key(key string) string {
	return s.prefix + key
}

// SetIfAbsent sets the key with the store TTL unless it already exists.
func (s *RedisLockStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, s.ttl).Result()
	if err != nil {
		return false, domain.NewUnavailableError("failed to set lock", err)
	}
	return ok, nil
}

// Get returns the lock value.
func (s *RedisLockStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NewNotFoundError("lock not found")
		}
		return nil, domain.NewUnavailableError("failed to get lock", err)
	}
	return value, nil
}

// Put overwrites the lock value and keeps its remaining lifetime.
func (s *RedisLockStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, redis.KeepTTL).Err(); err != nil {
		return domain.NewUnavailableError("failed to put lock", err)
	}
	return nil
}

// Delete removes the lock.
func (s *RedisLockStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return domain.NewUnavailableError("failed to delete lock", err)
	}
	return nil
}
