// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

func newPayloadValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// eventProcessor is the part of event handling shared by every platform: merge the
// meeting observation, then start transcript retrieval when the event points at one.
type eventProcessor struct {
	meetings *MeetingService
	queue    *TranscriptQueue
	// inline runs the download within the webhook request instead of queueing it
	inline bool
}

func (p eventProcessor) ready() bool {
	return p.meetings != nil && p.queue != nil
}

func (p eventProcessor) process(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	if !p.ready() {
		return models.OutcomeFailed, domain.NewUnavailableError("event processing is not configured", domain.ErrServiceUnavailable)
	}

	meeting, created, err := p.meetings.Upsert(ctx, event.MeetingObservation())
	if err != nil {
		return models.OutcomeFailed, err
	}
	outcome := models.OutcomeUpdated
	if created {
		outcome = models.OutcomeCreated
	}

	if event.Action == models.ActionConferenceEnded || event.Source == nil || event.Source.IsZero() {
		return outcome, nil
	}

	if p.inline {
		if err := p.queue.ProcessInline(ctx, meeting, *event.Source); err != nil {
			return models.OutcomeFailed, err
		}
		return outcome, nil
	}

	enqueued, err := p.queue.Enqueue(ctx, meeting.ID, meeting.Platform, *event.Source)
	if err != nil {
		return models.OutcomeFailed, err
	}
	if !enqueued {
		slog.DebugContext(ctx, "transcript retrieval already scheduled", "meeting_id", meeting.ID)
	}
	return outcome, nil
}
