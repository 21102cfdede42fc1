// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// MeetingRepository defines the interface for canonical meeting storage.
// Create returns a ConflictError when the meeting already exists and Update returns
// a ConflictError when the revision no longer matches, so callers can run CAS loops.
type MeetingRepository interface {
	Create(ctx context.Context, meeting *models.Meeting) error
	Get(ctx context.Context, meetingID string) (*models.Meeting, error)
	GetWithRevision(ctx context.Context, meetingID string) (*models.Meeting, uint64, error)
	Update(ctx context.Context, meeting *models.Meeting, revision uint64) error
	ListAll(ctx context.Context) ([]*models.Meeting, error)
}

// TranscriptRepository stores one transcript per meeting.
type TranscriptRepository interface {
	Create(ctx context.Context, transcript *models.Transcript) error
	GetByMeetingID(ctx context.Context, meetingID string) (*models.Transcript, error)
	GetByMeetingIDWithRevision(ctx context.Context, meetingID string) (*models.Transcript, uint64, error)
	Update(ctx context.Context, transcript *models.Transcript, revision uint64) error
}

// RawEventRepository is the append-only audit trail of received webhook events.
// Records are keyed by platform and external event id; Insert returns a ConflictError
// when the event was already recorded.
type RawEventRepository interface {
	Insert(ctx context.Context, event *models.RawEvent) error
	Get(ctx context.Context, platform models.Platform, externalEventID string) (*models.RawEvent, error)
	UpdateStatus(ctx context.Context, platform models.Platform, externalEventID string, status models.RawEventStatus, errorMessage string) error
}

// WebhookFailureRepository stores handler failures awaiting retry.
type WebhookFailureRepository interface {
	Create(ctx context.Context, failure *models.WebhookFailure) error
	GetWithRevision(ctx context.Context, id string) (*models.WebhookFailure, uint64, error)
	Update(ctx context.Context, failure *models.WebhookFailure, revision uint64) error
	ListAll(ctx context.Context) ([]*models.WebhookFailure, error)
}

// DeadLetterRepository stores failures that exhausted their retry budget.
// Create returns a ConflictError when an entry with the same id already exists.
type DeadLetterRepository interface {
	Create(ctx context.Context, entry *models.DeadLetterEntry) error
	Get(ctx context.Context, id string) (*models.DeadLetterEntry, error)
	GetWithRevision(ctx context.Context, id string) (*models.DeadLetterEntry, uint64, error)
	Update(ctx context.Context, entry *models.DeadLetterEntry, revision uint64) error
	ListAll(ctx context.Context) ([]*models.DeadLetterEntry, error)
}

// TranscriptJobRepository stores background transcript jobs keyed by meeting id.
type TranscriptJobRepository interface {
	Create(ctx context.Context, job *models.TranscriptJob) error
	GetWithRevision(ctx context.Context, id string) (*models.TranscriptJob, uint64, error)
	Update(ctx context.Context, job *models.TranscriptJob, revision uint64) error
	ListAll(ctx context.Context) ([]*models.TranscriptJob, error)
}
