// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// IdempotencyGuard deduplicates webhook deliveries with short-lived locks in a shared store.
type IdempotencyGuard struct {
	store    domain.LockStore
	timeout  time.Duration
	failOpen bool
	metrics  PipelineMetrics
	now      func() time.Time
}

// NewIdempotencyGuard creates a guard over store.
func NewIdempotencyGuard(store domain.LockStore, config ServiceConfig, metrics PipelineMetrics) *IdempotencyGuard {
	timeout := config.IdempotencyTimeout
	if timeout <= 0 {
		timeout = DefaultServiceConfig().IdempotencyTimeout
	}
	return &IdempotencyGuard{
		store:    store,
		timeout:  timeout,
		failOpen: config.IdempotencyFailOpen,
		metrics:  metricsOrNoop(metrics),
		now:      time.Now,
	}
}

// ServiceReady checks if the guard has a store to work with
func (g *IdempotencyGuard) ServiceReady() bool {
	return g.store != nil
}

// Acquire claims key in namespace. It returns false without error when another
// delivery already holds the key. An error is only returned when the store is
// unavailable and the guard is configured to fail closed.
func (g *IdempotencyGuard) Acquire(ctx context.Context, key, namespace string, metadata map[string]string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	lock := models.IdempotencyLock{
		Key:        key,
		Namespace:  namespace,
		Metadata:   metadata,
		AcquiredAt: g.now().UTC(),
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return false, domain.NewInternalError("failed to marshal idempotency lock", err)
	}

	acquired, err := g.store.SetIfAbsent(ctx, models.IdempotencyKey(namespace, key), data)
	if err != nil {
		if g.degraded(ctx, "acquire", key, namespace, err) {
			return true, nil
		}
		return false, domain.NewUnavailableError("idempotency store unavailable", err)
	}
	return acquired, nil
}

// AcquireLock reports whether the caller now owns key in namespace.
func (g *IdempotencyGuard) AcquireLock(ctx context.Context, key, namespace string, metadata map[string]string) bool {
	acquired, err := g.Acquire(ctx, key, namespace, metadata)
	return acquired && err == nil
}

// IsProcessed reports whether the event behind key finished processing.
func (g *IdempotencyGuard) IsProcessed(ctx context.Context, key, namespace string) bool {
	lock, err := g.load(ctx, key, namespace)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return false
		}
		// failing open means letting the event through, i.e. not processed
		return !g.degraded(ctx, "is_processed", key, namespace, err)
	}
	return lock.ProcessedAt != nil
}

// MarkProcessed stamps the lock as processed, creating it when it expired in the meantime.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, key, namespace string, metadata map[string]string) error {
	lock, err := g.load(ctx, key, namespace)
	if err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
			slog.WarnContext(ctx, "failed to read idempotency lock", logging.ErrKey, err, "idempotency_key", key)
			return err
		}
		lock = &models.IdempotencyLock{Key: key, Namespace: namespace, AcquiredAt: g.now().UTC()}
	}

	if len(metadata) > 0 {
		if lock.Metadata == nil {
			lock.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			lock.Metadata[k] = v
		}
	}
	processedAt := g.now().UTC()
	lock.ProcessedAt = &processedAt

	data, err := json.Marshal(lock)
	if err != nil {
		return domain.NewInternalError("failed to marshal idempotency lock", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.Put(ctx, models.IdempotencyKey(namespace, key), data); err != nil {
		slog.WarnContext(ctx, "failed to mark idempotency lock as processed", logging.ErrKey, err, "idempotency_key", key)
		return domain.NewUnavailableError("failed to mark event as processed", err)
	}
	return nil
}

// GetMetadata returns the metadata stored with the lock.
func (g *IdempotencyGuard) GetMetadata(ctx context.Context, key, namespace string) (map[string]string, error) {
	lock, err := g.load(ctx, key, namespace)
	if err != nil {
		return nil, err
	}
	return lock.Metadata, nil
}

// RemoveLock releases key so a redelivery of the same event is processed again.
func (g *IdempotencyGuard) RemoveLock(ctx context.Context, key, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.Delete(ctx, models.IdempotencyKey(namespace, key)); err != nil {
		slog.WarnContext(ctx, "failed to remove idempotency lock", logging.ErrKey, err,
			"idempotency_key", key,
			"namespace", namespace,
		)
		return domain.NewUnavailableError("failed to remove idempotency lock", err)
	}
	return nil
}

func (g *IdempotencyGuard) load(ctx context.Context, key, namespace string) (*models.IdempotencyLock, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	data, err := g.store.Get(ctx, models.IdempotencyKey(namespace, key))
	if err != nil {
		return nil, err
	}

	var lock models.IdempotencyLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, domain.NewInternalError("failed to unmarshal idempotency lock", domain.ErrUnmarshal, err)
	}
	return &lock, nil
}

// degraded logs a store failure and reports whether the caller should proceed as if
// the store had answered favourably.
func (g *IdempotencyGuard) degraded(ctx context.Context, operation, key, namespace string, err error) bool {
	slog.WarnContext(ctx, "idempotency store unavailable", logging.ErrKey, err,
		"operation", operation,
		"idempotency_key", key,
		"namespace", namespace,
		"fail_open", g.failOpen,
	)
	if g.failOpen {
		g.metrics.ObserveFailOpen()
	}
	return g.failOpen
}
