// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package idempotency

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/store"
)

// NatsLockStore keeps idempotency locks in a NATS KV bucket. Expiry is the bucket TTL,
// so the bucket must be created with the lock lifetime as its TTL.
type NatsLockStore struct {
	kv store.INatsKeyValue
}

var _ domain.LockStore = (*NatsLockStore)(nil)

// NewNatsLockStore creates a lock store over kv.
func NewNatsLockStore(kv store.INatsKeyValue) *NatsLockStore {
	return &NatsLockStore{kv: kv}
}

// SetIfAbsent creates the key; only one concurrent caller can win.
func (s *NatsLockStore) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	if s.kv == nil {
		return false, domain.NewUnavailableError("lock store is not available", domain.ErrServiceUnavailable)
	}
	if _, err := s.kv.Create(ctx, store.EncodeKey(key), value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, domain.NewInternalError("failed to create lock", err)
	}
	return true, nil
}

// Get returns the lock value.
func (s *NatsLockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.kv == nil {
		return nil, domain.NewUnavailableError("lock store is not available", domain.ErrServiceUnavailable)
	}
	entry, err := s.kv.Get(ctx, store.EncodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, domain.NewNotFoundError("lock not found", err)
		}
		return nil, domain.NewInternalError("failed to get lock", err)
	}
	return entry.Value(), nil
}

// Put overwrites the lock value. The bucket TTL is measured from this write.
func (s *NatsLockStore) Put(ctx context.Context, key string, value []byte) error {
	if s.kv == nil {
		return domain.NewUnavailableError("lock store is not available", domain.ErrServiceUnavailable)
	}
	if _, err := s.kv.Put(ctx, store.EncodeKey(key), value); err != nil {
		return domain.NewInternalError("failed to put lock", err)
	}
	return nil
}

// Delete removes the lock. Removing a missing lock is not an error.
func (s *NatsLockStore) Delete(ctx context.Context, key string) error {
	if s.kv == nil {
		return domain.NewUnavailableError("lock store is not available", domain.ErrServiceUnavailable)
	}
	if err := s.kv.Delete(ctx, store.EncodeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return domain.NewInternalError("failed to delete lock", err)
	}
	return nil
}
