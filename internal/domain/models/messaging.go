// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// NATS subjects used by the service
const (
	// TranscriptJobEnqueuedSubject wakes the transcript job dispatcher up when a job is enqueued.
	TranscriptJobEnqueuedSubject = "lfx.meeting-transcript.job.enqueued"
	// MeetingUpdatedSubject carries meeting status changes for external observers.
	MeetingUpdatedSubject = "lfx.meeting-transcript.meeting.updated"
	// TranscriptJobQueueGroup load-balances wake-ups across service replicas.
	TranscriptJobQueueGroup = "lfx.meeting-transcript.queue"
)

// TranscriptJobNotification is the msgpack-encoded wake-up message for the dispatcher.
type TranscriptJobNotification struct {
	JobID     string    `msgpack:"job_id"`
	MeetingID string    `msgpack:"meeting_id"`
	Platform  Platform  `msgpack:"platform"`
	NextRunAt time.Time `msgpack:"next_run_at"`
}

// MeetingUpdatedMessage is published when a meeting changes status.
type MeetingUpdatedMessage struct {
	MeetingID          string        `json:"meeting_id"`
	Platform           Platform      `json:"platform"`
	PlatformMeetingID  string        `json:"platform_meeting_id"`
	Status             MeetingStatus `json:"status"`
	ProcessingStep     string        `json:"processing_step,omitempty"`
	ProcessingProgress int           `json:"processing_progress"`
	LastError          string        `json:"last_error,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
