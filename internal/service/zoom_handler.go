// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/utils"
)

var zoomActions = map[string]models.EventAction{
	models.ZoomEventMeetingEnded:        models.ActionConferenceEnded,
	models.ZoomEventRecordingCompleted:  models.ActionRecordingReady,
	models.ZoomEventTranscriptCompleted: models.ActionTranscriptReady,
}

// ZoomEventHandler handles Zoom webhooks. Transcript downloads always go through the
// queue since Zoom announces files before they can be downloaded.
type ZoomEventHandler struct {
	eventProcessor
	validate *validator.Validate
	now      func() time.Time
}

var _ PlatformHandler = (*ZoomEventHandler)(nil)

// NewZoomEventHandler creates the Zoom handler.
func NewZoomEventHandler(meetings *MeetingService, queue *TranscriptQueue) *ZoomEventHandler {
	return &ZoomEventHandler{
		eventProcessor: eventProcessor{meetings: meetings, queue: queue},
		validate:       newPayloadValidator(),
		now:            time.Now,
	}
}

// Platform returns zoom.
func (h *ZoomEventHandler) Platform() models.Platform {
	return models.PlatformZoom
}

// URLValidation reports whether body is an endpoint.url_validation challenge and
// returns its plain token.
func (h *ZoomEventHandler) URLValidation(body []byte) (plainToken string, ok bool, err error) {
	var payload models.ZoomWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", false, domain.NewValidationError("invalid zoom webhook payload", domain.ErrUnmarshal, err)
	}
	if payload.Event != models.ZoomEventURLValidation {
		return "", false, nil
	}
	if payload.Payload.PlainToken == "" {
		return "", true, domain.NewValidationError("url validation challenge without plainToken", domain.ErrValidationFailed)
	}
	return payload.Payload.PlainToken, true, nil
}

// Normalize converts a Zoom webhook into at most one canonical event.
func (h *ZoomEventHandler) Normalize(ctx context.Context, body []byte) ([]*models.WebhookEvent, error) {
	var payload models.ZoomWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, domain.NewValidationError("invalid zoom webhook payload", domain.ErrUnmarshal, err)
	}

	action, ok := zoomActions[payload.Event]
	if !ok {
		// includes endpoint.url_validation, answered at the transport
		slog.DebugContext(ctx, "ignoring zoom event", "event_type", payload.Event)
		return nil, nil
	}

	if err := h.validate.StructCtx(ctx, payload); err != nil {
		return nil, domain.NewValidationError("invalid zoom webhook payload", err)
	}

	object := payload.Payload.Object
	event := &models.WebhookEvent{
		Platform:          models.PlatformZoom,
		EventType:         payload.Event,
		Action:            action,
		ExternalEventID:   fmt.Sprintf("%s:%s:%d", payload.Event, object.UUID, payload.EventTS),
		PlatformMeetingID: object.UUID,
		Topic:             object.Topic,
		HostEmail:         object.HostEmail,
		ReceivedAt:        h.now().UTC(),
		Payload:           json.RawMessage(body),
	}
	if !object.StartTime.IsZero() {
		event.StartTime = utils.TimePtr(object.StartTime.UTC())
	}
	switch {
	case !object.EndTime.IsZero():
		event.EndTime = utils.TimePtr(object.EndTime.UTC())
	case event.StartTime != nil && object.Duration > 0:
		event.EndTime = utils.TimePtr(event.StartTime.Add(time.Duration(object.Duration) * time.Minute))
	}

	if action != models.ActionConferenceEnded {
		if file := object.TranscriptFile(); file != nil && file.DownloadURL != "" {
			event.Source = &models.TranscriptSource{
				Kind:          models.TranscriptSourceDownloadURL,
				DownloadURL:   file.DownloadURL,
				DownloadToken: payload.DownloadToken,
				TranscriptID:  file.ID,
			}
		}
	}

	return []*models.WebhookEvent{event}, nil
}

// Handle upserts the meeting and queues the transcript download.
func (h *ZoomEventHandler) Handle(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	return h.process(ctx, event)
}
