// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// IdempotencyLock is the value stored under an idempotency key while the lock is held.
type IdempotencyLock struct {
	Key         string            `json:"key"`
	Namespace   string            `json:"namespace"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	AcquiredAt  time.Time         `json:"acquired_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
}

// IdempotencyKey namespaces an event identifier so equal ids from different platforms never collide.
func IdempotencyKey(namespace, key string) string {
	return namespace + ":" + key
}
