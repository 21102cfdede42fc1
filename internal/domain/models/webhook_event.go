// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"time"
)

// EventAction is the canonical action a platform event translates into.
type EventAction string

// Canonical lifecycle actions
const (
	ActionConferenceEnded EventAction = "conference_ended"
	ActionRecordingReady  EventAction = "recording_ready"
	ActionTranscriptReady EventAction = "transcript_ready"
)

// RouteOutcome is the result of routing one event.
type RouteOutcome string

// Route outcomes
const (
	OutcomeCreated RouteOutcome = "created"
	OutcomeUpdated RouteOutcome = "updated"
	OutcomeSkipped RouteOutcome = "skipped"
	OutcomeFailed  RouteOutcome = "failed"
)

// WebhookEvent is a platform payload normalized at the webhook boundary. Business logic
// only ever sees this shape.
type WebhookEvent struct {
	Platform          Platform          `json:"platform" validate:"required,oneof=zoom teams meet"`
	EventType         string            `json:"event_type" validate:"required"`
	Action            EventAction       `json:"action" validate:"required,oneof=conference_ended recording_ready transcript_ready"`
	ExternalEventID   string            `json:"external_event_id" validate:"required"`
	PlatformMeetingID string            `json:"platform_meeting_id" validate:"required"`
	Topic             string            `json:"topic,omitempty"`
	HostEmail         string            `json:"host_email,omitempty" validate:"omitempty,email"`
	HostName          string            `json:"host_name,omitempty"`
	StartTime         *time.Time        `json:"start_time,omitempty"`
	EndTime           *time.Time        `json:"end_time,omitempty"`
	Source            *TranscriptSource `json:"source,omitempty"`
	ReceivedAt        time.Time         `json:"received_at"`
	Payload           json.RawMessage   `json:"payload,omitempty"` // original platform body
}

// MeetingObservation returns the meeting fields this event carries, ready to be merged.
func (e *WebhookEvent) MeetingObservation() Meeting {
	return Meeting{
		ID:                MeetingIDFor(e.Platform, e.PlatformMeetingID),
		Platform:          e.Platform,
		PlatformMeetingID: e.PlatformMeetingID,
		HostEmail:         e.HostEmail,
		HostName:          e.HostName,
		Topic:             e.Topic,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		Status:            MeetingStatusPending,
	}
}

// LockKey returns the identifier used for idempotency within the platform namespace.
func (e *WebhookEvent) LockKey() string {
	return e.ExternalEventID
}
