// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/utils"
)

// MeetEventHandler handles Google Workspace events delivered through Pub/Sub push.
// The transcript document is exported inline once Meet reports it generated.
type MeetEventHandler struct {
	eventProcessor
	validate *validator.Validate
	now      func() time.Time
}

var _ PlatformHandler = (*MeetEventHandler)(nil)

// NewMeetEventHandler creates the Meet handler.
func NewMeetEventHandler(meetings *MeetingService, queue *TranscriptQueue) *MeetEventHandler {
	return &MeetEventHandler{
		eventProcessor: eventProcessor{meetings: meetings, queue: queue, inline: true},
		validate:       newPayloadValidator(),
		now:            time.Now,
	}
}

// Platform returns meet.
func (h *MeetEventHandler) Platform() models.Platform {
	return models.PlatformMeet
}

// Normalize converts a push envelope into at most one canonical event.
func (h *MeetEventHandler) Normalize(ctx context.Context, body []byte) ([]*models.WebhookEvent, error) {
	var envelope models.MeetPushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.NewValidationError("invalid meet push payload", domain.ErrUnmarshal, err)
	}
	if err := h.validate.StructCtx(ctx, envelope); err != nil {
		return nil, domain.NewValidationError("invalid meet push payload", err)
	}

	attributes := envelope.Message.Attributes
	var data models.MeetEventData
	if len(envelope.Message.Data) > 0 {
		if err := json.Unmarshal(envelope.Message.Data, &data); err != nil {
			return nil, domain.NewValidationError("invalid meet event data", domain.ErrUnmarshal, err)
		}
	}

	event := &models.WebhookEvent{
		Platform:        models.PlatformMeet,
		EventType:       attributes.Type,
		ExternalEventID: utils.CoalesceString(attributes.ID, envelope.Message.MessageID),
		ReceivedAt:      h.now().UTC(),
		Payload:         json.RawMessage(body),
	}

	switch attributes.Type {
	case models.MeetEventConferenceEnded:
		event.Action = models.ActionConferenceEnded
		if record := data.ConferenceRecord; record != nil {
			event.PlatformMeetingID = models.ConferenceRecordID(record.Name)
			event.StartTime = record.StartTime
			event.EndTime = record.EndTime
		}
	case models.MeetEventRecordingGenerated:
		event.Action = models.ActionRecordingReady
		if recording := data.Recording; recording != nil {
			event.PlatformMeetingID = models.ConferenceRecordID(recording.Name)
		}
	case models.MeetEventTranscriptGenerated:
		event.Action = models.ActionTranscriptReady
		if transcript := data.Transcript; transcript != nil {
			event.PlatformMeetingID = models.ConferenceRecordID(transcript.Name)
			if transcript.DocsDestination.Document != "" {
				event.Source = &models.TranscriptSource{
					Kind:         models.TranscriptSourceDriveExport,
					DocumentID:   transcript.DocsDestination.Document,
					TranscriptID: transcript.Name,
				}
			}
		}
	default:
		slog.DebugContext(ctx, "ignoring meet event", "event_type", attributes.Type)
		return nil, nil
	}

	if event.PlatformMeetingID == "" {
		event.PlatformMeetingID = models.ConferenceRecordID(attributes.Subject)
	}
	if event.PlatformMeetingID == "" {
		return nil, domain.NewValidationError("meet event without conference record", domain.ErrValidationFailed)
	}

	return []*models.WebhookEvent{event}, nil
}

// Handle upserts the meeting and exports the transcript document.
func (h *MeetEventHandler) Handle(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	return h.process(ctx, event)
}
