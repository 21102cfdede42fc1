// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// NatsMeetingRepository is the NATS KV store repository for canonical meetings.
// Meeting ids are deterministic UUIDs and are used as keys directly.
type NatsMeetingRepository struct {
	*NatsBaseRepository[models.Meeting]
}

var _ domain.MeetingRepository = (*NatsMeetingRepository)(nil)

// NewNatsMeetingRepository creates a new NATS KV store repository for meetings.
func NewNatsMeetingRepository(meetings INatsKeyValue) *NatsMeetingRepository {
	return &NatsMeetingRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Meeting](meetings, "meeting"),
	}
}

// Create stores a new meeting, failing with a ConflictError when it already exists.
func (s *NatsMeetingRepository) Create(ctx context.Context, meeting *models.Meeting) error {
	if meeting.ID == "" {
		return domain.NewValidationError("meeting id is required", domain.ErrValidationFailed)
	}
	_, err := s.Insert(ctx, meeting.ID, meeting)
	return err
}

// Get retrieves a meeting by id.
func (s *NatsMeetingRepository) Get(ctx context.Context, meetingID string) (*models.Meeting, error) {
	meeting, _, err := s.GetWithRevision(ctx, meetingID)
	return meeting, err
}

// GetWithRevision retrieves a meeting and its revision.
func (s *NatsMeetingRepository) GetWithRevision(ctx context.Context, meetingID string) (*models.Meeting, uint64, error) {
	meeting, revision, err := s.NatsBaseRepository.GetWithRevision(ctx, meetingID)
	if err != nil && domain.GetErrorType(err) == domain.ErrorTypeNotFound {
		return nil, 0, domain.NewNotFoundError(fmt.Sprintf("meeting %s not found", meetingID), domain.ErrMeetingNotFound, err)
	}
	return meeting, revision, err
}

// Update replaces a meeting if revision is still current.
func (s *NatsMeetingRepository) Update(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	return s.NatsBaseRepository.Update(ctx, meeting.ID, meeting, revision)
}

// ListAll returns every meeting, oldest first.
func (s *NatsMeetingRepository) ListAll(ctx context.Context) ([]*models.Meeting, error) {
	meetings, err := s.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(meetings, func(i, j int) bool {
		return meetings[i].CreatedAt.Before(meetings[j].CreatedAt)
	})
	return meetings, nil
}
