// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// NatsTranscriptJobRepository is the NATS KV store repository for background transcript jobs.
type NatsTranscriptJobRepository struct {
	*NatsBaseRepository[models.TranscriptJob]
}

var _ domain.TranscriptJobRepository = (*NatsTranscriptJobRepository)(nil)

// NewNatsTranscriptJobRepository creates a new NATS KV store repository for transcript jobs.
func NewNatsTranscriptJobRepository(jobs INatsKeyValue) *NatsTranscriptJobRepository {
	return &NatsTranscriptJobRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.TranscriptJob](jobs, "transcript job"),
	}
}

// Create stores a new job; a job for the same meeting already present is a ConflictError.
func (s *NatsTranscriptJobRepository) Create(ctx context.Context, job *models.TranscriptJob) error {
	if job.ID == "" {
		return domain.NewValidationError("transcript job id is required", domain.ErrValidationFailed)
	}
	_, err := s.Insert(ctx, job.ID, job)
	return err
}

// Update replaces a job if revision is still current.
func (s *NatsTranscriptJobRepository) Update(ctx context.Context, job *models.TranscriptJob, revision uint64) error {
	return s.NatsBaseRepository.Update(ctx, job.ID, job, revision)
}

// ListAll returns every job ordered by next run time.
func (s *NatsTranscriptJobRepository) ListAll(ctx context.Context) ([]*models.TranscriptJob, error) {
	jobs, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].NextRunAt.Before(jobs[j].NextRunAt)
	})
	return jobs, nil
}
