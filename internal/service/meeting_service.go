// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// MeetingService owns the canonical meeting records and their state machine.
type MeetingService struct {
	MeetingRepository domain.MeetingRepository
	MessageBuilder    domain.MeetingEventSender
	now               func() time.Time
}

// NewMeetingService creates a new MeetingService.
func NewMeetingService(meetingRepository domain.MeetingRepository, messageBuilder domain.MeetingEventSender) *MeetingService {
	return &MeetingService{
		MeetingRepository: meetingRepository,
		MessageBuilder:    messageBuilder,
		now:               time.Now,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *MeetingService) ServiceReady() bool {
	return s.MeetingRepository != nil && s.MessageBuilder != nil
}

// GetMeeting returns the meeting with id.
func (s *MeetingService) GetMeeting(ctx context.Context, id string) (*models.Meeting, error) {
	return s.MeetingRepository.Get(ctx, id)
}

// Upsert merges observation into the stored meeting, creating it when missing. The
// merge is commutative so concurrent and out-of-order events converge. created
// reports whether this call inserted the record.
func (s *MeetingService) Upsert(ctx context.Context, observation models.Meeting) (meeting *models.Meeting, created bool, err error) {
	if observation.ID == "" {
		if !observation.Platform.IsValid() || observation.PlatformMeetingID == "" {
			return nil, false, domain.NewValidationError("meeting platform and platform meeting id are required", domain.ErrValidationFailed)
		}
		observation.ID = models.MeetingIDFor(observation.Platform, observation.PlatformMeetingID)
	}
	if observation.Status == "" {
		observation.Status = models.MeetingStatusPending
	}

	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", observation.ID))

	for range maxCASAttempts {
		existing, revision, getErr := s.MeetingRepository.GetWithRevision(ctx, observation.ID)
		if getErr != nil {
			if domain.GetErrorType(getErr) != domain.ErrorTypeNotFound {
				return nil, false, getErr
			}

			now := s.now().UTC()
			fresh := observation
			fresh.CreatedAt = now
			fresh.UpdatedAt = now
			err = s.MeetingRepository.Create(ctx, &fresh)
			if err == nil {
				slog.DebugContext(ctx, "meeting created", "platform", fresh.Platform)
				s.publish(ctx, &fresh)
				return &fresh, true, nil
			}
			if domain.GetErrorType(err) != domain.ErrorTypeConflict {
				return nil, false, err
			}
			continue
		}

		merged := models.MergeMeeting(*existing, observation)
		merged.UpdatedAt = existing.UpdatedAt
		if reflect.DeepEqual(merged, *existing) {
			return existing, false, nil
		}
		merged.UpdatedAt = s.now().UTC()

		err = s.MeetingRepository.Update(ctx, &merged, revision)
		if err == nil {
			if merged.Status != existing.Status {
				s.publish(ctx, &merged)
			}
			return &merged, false, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, false, err
		}
	}

	slog.WarnContext(ctx, "meeting upsert kept losing against concurrent writers", logging.ErrKey, err)
	return nil, false, err
}

// Advance moves the meeting forward to status. Moves backwards and moves out of a
// terminal state are ignored; the current record is returned in that case. Staying in
// the same status only refreshes the advisory processing step and progress.
func (s *MeetingService) Advance(ctx context.Context, id string, status models.MeetingStatus, step string, progress int) (*models.Meeting, error) {
	return s.transition(ctx, id, func(m *models.Meeting) bool {
		switch {
		case m.Status == status && !m.Status.IsTerminal():
			if m.ProcessingStep == step && m.ProcessingProgress >= progress {
				return false
			}
		case m.Status.CanTransitionTo(status):
			m.Status = status
		default:
			slog.DebugContext(ctx, "ignoring meeting transition",
				"from", m.Status,
				"to", status,
			)
			return false
		}
		m.ProcessingStep = step
		m.ProcessingProgress = max(m.ProcessingProgress, progress)
		return true
	})
}

// Fail moves the meeting to failed from any non-terminal state.
func (s *MeetingService) Fail(ctx context.Context, id string, cause string) (*models.Meeting, error) {
	return s.transition(ctx, id, func(m *models.Meeting) bool {
		if !m.Status.CanTransitionTo(models.MeetingStatusFailed) {
			return false
		}
		m.Status = models.MeetingStatusFailed
		m.ProcessingStep = models.ProcessingStepFailed
		m.LastError = cause
		return true
	})
}

// Reprocess is the manual re-entry into the pipeline: a failed or completed meeting
// goes back to pending. Meetings still in flight are rejected with a ConflictError.
func (s *MeetingService) Reprocess(ctx context.Context, id string) (*models.Meeting, error) {
	var inFlight bool
	meeting, err := s.transition(ctx, id, func(m *models.Meeting) bool {
		inFlight = !m.Status.IsTerminal()
		if inFlight {
			return false
		}
		m.Status = models.MeetingStatusPending
		m.ProcessingStep = models.ProcessingStepReceived
		m.ProcessingProgress = 0
		m.LastError = ""
		return true
	})
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, domain.NewConflictError("meeting is still being processed: " + string(meeting.Status))
	}
	return meeting, nil
}

// transition applies mutate in a CAS loop and publishes the change. mutate returns
// false to leave the record untouched.
func (s *MeetingService) transition(ctx context.Context, id string, mutate func(*models.Meeting) bool) (*models.Meeting, error) {
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", id))

	var err error
	for range maxCASAttempts {
		var (
			meeting  *models.Meeting
			revision uint64
		)
		meeting, revision, err = s.MeetingRepository.GetWithRevision(ctx, id)
		if err != nil {
			return nil, err
		}

		previous := meeting.Status
		if !mutate(meeting) {
			return meeting, nil
		}
		meeting.UpdatedAt = s.now().UTC()

		err = s.MeetingRepository.Update(ctx, meeting, revision)
		if err == nil {
			if meeting.Status != previous {
				slog.InfoContext(ctx, "meeting status changed",
					"from", previous,
					"to", meeting.Status,
					"processing_step", meeting.ProcessingStep,
				)
				s.publish(ctx, meeting)
			}
			return meeting, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, err
		}
	}
	return nil, err
}

func (s *MeetingService) publish(ctx context.Context, meeting *models.Meeting) {
	if s.MessageBuilder == nil {
		return
	}
	err := s.MessageBuilder.SendMeetingUpdated(ctx, models.MeetingUpdatedMessage{
		MeetingID:          meeting.ID,
		Platform:           meeting.Platform,
		PlatformMeetingID:  meeting.PlatformMeetingID,
		Status:             meeting.Status,
		ProcessingStep:     meeting.ProcessingStep,
		ProcessingProgress: meeting.ProcessingProgress,
		LastError:          meeting.LastError,
		UpdatedAt:          meeting.UpdatedAt,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to publish meeting update", logging.ErrKey, err)
	}
}
