// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// NatsWebhookFailureRepository is the NATS KV store repository for webhook failures.
type NatsWebhookFailureRepository struct {
	*NatsBaseRepository[models.WebhookFailure]
}

var _ domain.WebhookFailureRepository = (*NatsWebhookFailureRepository)(nil)

// NewNatsWebhookFailureRepository creates a new NATS KV store repository for webhook failures.
func NewNatsWebhookFailureRepository(failures INatsKeyValue) *NatsWebhookFailureRepository {
	return &NatsWebhookFailureRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.WebhookFailure](failures, "webhook failure"),
	}
}

// Create stores a new failure record.
func (s *NatsWebhookFailureRepository) Create(ctx context.Context, failure *models.WebhookFailure) error {
	if failure.ID == "" {
		return domain.NewValidationError("webhook failure id is required", domain.ErrValidationFailed)
	}
	_, err := s.Insert(ctx, failure.ID, failure)
	return err
}

// Update replaces a failure record if revision is still current.
func (s *NatsWebhookFailureRepository) Update(ctx context.Context, failure *models.WebhookFailure, revision uint64) error {
	return s.NatsBaseRepository.Update(ctx, failure.ID, failure, revision)
}

// ListAll returns every failure ordered by next retry time.
func (s *NatsWebhookFailureRepository) ListAll(ctx context.Context) ([]*models.WebhookFailure, error) {
	failures, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].NextRetryAt.Before(failures[j].NextRetryAt)
	})
	return failures, nil
}
