// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "context"

// LockStore is a shared key-value store with an atomic set-if-absent operation.
// Entries expire after the store's TTL.
type LockStore interface {
	// SetIfAbsent stores value under key only when the key does not exist yet.
	// It returns false when another caller already holds the key.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	// Get returns a NotFoundError when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
