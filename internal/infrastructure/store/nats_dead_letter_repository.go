// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// NatsDeadLetterRepository is the NATS KV store repository for dead-letter entries.
type NatsDeadLetterRepository struct {
	*NatsBaseRepository[models.DeadLetterEntry]
}

var _ domain.DeadLetterRepository = (*NatsDeadLetterRepository)(nil)

// NewNatsDeadLetterRepository creates a new NATS KV store repository for dead letters.
func NewNatsDeadLetterRepository(deadLetters INatsKeyValue) *NatsDeadLetterRepository {
	return &NatsDeadLetterRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.DeadLetterEntry](deadLetters, "dead letter"),
	}
}

// Create stores an entry once; a second create with the same id is a ConflictError.
func (s *NatsDeadLetterRepository) Create(ctx context.Context, entry *models.DeadLetterEntry) error {
	if entry.ID == "" {
		return domain.NewValidationError("dead letter id is required", domain.ErrValidationFailed)
	}
	_, err := s.Insert(ctx, entry.ID, entry)
	return err
}

// Update replaces an entry if revision is still current.
func (s *NatsDeadLetterRepository) Update(ctx context.Context, entry *models.DeadLetterEntry, revision uint64) error {
	return s.NatsBaseRepository.Update(ctx, entry.ID, entry, revision)
}

// ListAll returns every entry, newest first.
func (s *NatsDeadLetterRepository) ListAll(ctx context.Context) ([]*models.DeadLetterEntry, error) {
	entries, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}
