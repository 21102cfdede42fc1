// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"time"
)

// Zoom event types handled by the service
const (
	ZoomEventURLValidation       = "endpoint.url_validation"
	ZoomEventMeetingEnded        = "meeting.ended"
	ZoomEventRecordingCompleted  = "recording.completed"
	ZoomEventTranscriptCompleted = "recording.transcript_completed"
)

// Zoom recording file types
const (
	ZoomFileTypeTranscript = "TRANSCRIPT"
	ZoomFileTypeCC         = "CC"
)

// ZoomWebhookPayload is the body Zoom posts to the webhook endpoint.
type ZoomWebhookPayload struct {
	Event         string           `json:"event" validate:"required"`
	EventTS       int64            `json:"event_ts"`
	DownloadToken string           `json:"download_token,omitempty"`
	Payload       ZoomEventPayload `json:"payload"`
}

// ZoomEventPayload is the "payload" member of a Zoom webhook.
type ZoomEventPayload struct {
	AccountID  string            `json:"account_id,omitempty"`
	PlainToken string            `json:"plainToken,omitempty"` // endpoint.url_validation only
	Object     ZoomMeetingObject `json:"object"`
}

// ZoomMeetingObject is the meeting object shared by meeting and recording events.
type ZoomMeetingObject struct {
	UUID           string          `json:"uuid" validate:"required"`
	ID             json.Number     `json:"id,omitempty"` // Zoom sends a number for recordings, a string for meetings
	HostID         string          `json:"host_id,omitempty"`
	HostEmail      string          `json:"host_email,omitempty"`
	Topic          string          `json:"topic,omitempty"`
	Type           int             `json:"type,omitempty"`
	StartTime      time.Time       `json:"start_time,omitempty"`
	EndTime        time.Time       `json:"end_time,omitempty"`
	Timezone       string          `json:"timezone,omitempty"`
	Duration       int             `json:"duration,omitempty"`
	RecordingFiles []RecordingFile `json:"recording_files,omitempty" validate:"dive"`
}

// RecordingFile represents a recording file in webhook payloads
type RecordingFile struct {
	ID             string    `json:"id"`
	MeetingID      string    `json:"meeting_id"`
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
	FileType       string    `json:"file_type"`
	FileExtension  string    `json:"file_extension,omitempty"`
	FileSize       int64     `json:"file_size"`
	PlayURL        string    `json:"play_url"`
	DownloadURL    string    `json:"download_url" validate:"omitempty,url"`
	Status         string    `json:"status"`
	RecordingType  string    `json:"recording_type"`
}

// TranscriptFile returns the first transcript (or closed caption) file of the recording.
func (o *ZoomMeetingObject) TranscriptFile() *RecordingFile {
	var cc *RecordingFile
	for i := range o.RecordingFiles {
		switch o.RecordingFiles[i].FileType {
		case ZoomFileTypeTranscript:
			return &o.RecordingFiles[i]
		case ZoomFileTypeCC:
			if cc == nil {
				cc = &o.RecordingFiles[i]
			}
		}
	}
	return cc
}

// ZoomURLValidationResponse answers the endpoint.url_validation challenge.
type ZoomURLValidationResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}
