// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// INatsObjectStore is the subset of jetstream.ObjectStore used by the archive.
type INatsObjectStore interface {
	PutBytes(ctx context.Context, name string, data []byte) (*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
}

// NatsObjectArchive keeps raw caption files in a JetStream object store.
type NatsObjectArchive struct {
	store INatsObjectStore
}

var _ domain.CaptionArchive = (*NatsObjectArchive)(nil)

// NewNatsObjectArchive creates an archive over a JetStream object store.
func NewNatsObjectArchive(store INatsObjectStore) *NatsObjectArchive {
	return &NatsObjectArchive{store: store}
}

// Store writes content under key, replacing any previous version.
func (a *NatsObjectArchive) Store(ctx context.Context, key string, content []byte) error {
	if a.store == nil {
		return domain.NewUnavailableError("caption object store is not configured", domain.ErrServiceUnavailable)
	}
	if _, err := a.store.PutBytes(ctx, key, content); err != nil {
		slog.ErrorContext(ctx, "error storing caption object", logging.ErrKey, err, "key", key)
		return domain.NewUnavailableError("failed to store caption object", err)
	}
	return nil
}

// Load returns the content stored under key.
func (a *NatsObjectArchive) Load(ctx context.Context, key string) ([]byte, error) {
	if a.store == nil {
		return nil, domain.NewUnavailableError("caption object store is not configured", domain.ErrServiceUnavailable)
	}
	data, err := a.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, domain.NewNotFoundError("caption object not found")
		}
		return nil, domain.NewUnavailableError("failed to load caption object", err)
	}
	return data, nil
}
