// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// NatsTranscriptRepository is the NATS KV store repository for transcripts, keyed by meeting id.
type NatsTranscriptRepository struct {
	*NatsBaseRepository[models.Transcript]
}

var _ domain.TranscriptRepository = (*NatsTranscriptRepository)(nil)

// NewNatsTranscriptRepository creates a new NATS KV store repository for transcripts.
func NewNatsTranscriptRepository(transcripts INatsKeyValue) *NatsTranscriptRepository {
	return &NatsTranscriptRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Transcript](transcripts, "transcript"),
	}
}

// Create stores the first transcript record of a meeting.
func (s *NatsTranscriptRepository) Create(ctx context.Context, transcript *models.Transcript) error {
	if transcript.MeetingID == "" {
		return domain.NewValidationError("transcript meeting id is required", domain.ErrValidationFailed)
	}
	_, err := s.Insert(ctx, transcript.MeetingID, transcript)
	return err
}

// GetByMeetingID retrieves the transcript of a meeting.
func (s *NatsTranscriptRepository) GetByMeetingID(ctx context.Context, meetingID string) (*models.Transcript, error) {
	return s.Get(ctx, meetingID)
}

// GetByMeetingIDWithRevision retrieves the transcript of a meeting and its revision.
func (s *NatsTranscriptRepository) GetByMeetingIDWithRevision(ctx context.Context, meetingID string) (*models.Transcript, uint64, error) {
	return s.GetWithRevision(ctx, meetingID)
}

// Update replaces the transcript if revision is still current.
func (s *NatsTranscriptRepository) Update(ctx context.Context, transcript *models.Transcript, revision uint64) error {
	return s.NatsBaseRepository.Update(ctx, transcript.MeetingID, transcript, revision)
}
