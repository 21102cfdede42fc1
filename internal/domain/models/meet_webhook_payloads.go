// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"strings"
	"time"
)

// Google Workspace Events types for Meet
const (
	MeetEventConferenceEnded     = "google.workspace.meet.conference.v2.ended"
	MeetEventRecordingGenerated  = "google.workspace.meet.recording.v2.fileGenerated"
	MeetEventTranscriptGenerated = "google.workspace.meet.transcript.v2.fileGenerated"
)

// MeetPushEnvelope is the Pub/Sub push body delivering a Workspace event.
type MeetPushEnvelope struct {
	Message      MeetPushMessage `json:"message" validate:"required"`
	Subscription string          `json:"subscription,omitempty"`
}

// MeetPushMessage is the Pub/Sub message inside a push envelope.
type MeetPushMessage struct {
	Attributes  MeetEventAttributes `json:"attributes"`
	Data        []byte              `json:"data"` // base64 in JSON, decoded by encoding/json
	MessageID   string              `json:"messageId" validate:"required"`
	PublishTime time.Time           `json:"publishTime"`
}

// MeetEventAttributes are the CloudEvents attributes set by the Workspace Events API.
type MeetEventAttributes struct {
	Type    string `json:"ce-type" validate:"required"`
	ID      string `json:"ce-id,omitempty"`
	Subject string `json:"ce-subject,omitempty"`
	Time    string `json:"ce-time,omitempty"`
}

// MeetEventData is the decoded data of a Meet event.
type MeetEventData struct {
	ConferenceRecord *MeetResource   `json:"conferenceRecord,omitempty"`
	Recording        *MeetResource   `json:"recording,omitempty"`
	Transcript       *MeetTranscript `json:"transcript,omitempty"`
}

// MeetResource is a named Meet REST resource.
type MeetResource struct {
	Name      string     `json:"name"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Space     string     `json:"space,omitempty"`
}

// MeetTranscript is the transcript resource of a conference record.
type MeetTranscript struct {
	Name            string     `json:"name"`
	State           string     `json:"state,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DocsDestination struct {
		Document  string `json:"document"`
		ExportURI string `json:"exportUri,omitempty"`
	} `json:"docsDestination"`
}

// ConferenceRecordID extracts "abc" from "conferenceRecords/abc/transcripts/xyz".
func ConferenceRecordID(name string) string {
	parts := strings.Split(strings.TrimPrefix(name, "//meet.googleapis.com/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "conferenceRecords" {
			return parts[i+1]
		}
	}
	return ""
}
