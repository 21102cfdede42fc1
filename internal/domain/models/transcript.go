// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"time"

	"github.com/google/uuid"
)

// TranscriptStatus is the fetch state of a transcript.
type TranscriptStatus string

// Transcript states
const (
	TranscriptStatusPending  TranscriptStatus = "pending"
	TranscriptStatusFetching TranscriptStatus = "fetching"
	TranscriptStatusReady    TranscriptStatus = "ready"
	TranscriptStatusFailed   TranscriptStatus = "failed"
)

// SpeakerSegment is a run of consecutive caption cues spoken by the same speaker.
type SpeakerSegment struct {
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"` // seconds from the start of the recording
	EndTime   float64 `json:"end_time"`
}

// Transcript is the normalized transcript of a meeting. There is at most one per meeting.
type Transcript struct {
	ID                string           `json:"id"`
	MeetingID         string           `json:"meeting_id"`
	Platform          Platform         `json:"platform"`
	Content           string           `json:"content"`
	RawCaptionContent string           `json:"raw_caption_content,omitempty"`
	SpeakerSegments   []SpeakerSegment `json:"speaker_segments"`
	WordCount         int              `json:"word_count"`
	Status            TranscriptStatus `json:"status"`
	FetchAttempts     int              `json:"fetch_attempts"`
	LastFetchError    string           `json:"last_fetch_error,omitempty"`
	Source            TranscriptSource `json:"source"`
	ArchiveKey        string           `json:"archive_key,omitempty"` // location of the archived raw caption file
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TranscriptIDFor returns the deterministic transcript id for a meeting.
func TranscriptIDFor(meetingID string) string {
	return uuid.NewSHA1(meetingNamespace, []byte("transcript:"+meetingID)).String()
}

// TranscriptSourceKind identifies how a transcript is retrieved.
type TranscriptSourceKind string

// Transcript source kinds
const (
	TranscriptSourceDownloadURL TranscriptSourceKind = "download_url" // signed, short-lived download URL
	TranscriptSourceGraph       TranscriptSourceKind = "graph"        // paginated list/get transcript API
	TranscriptSourceDriveExport TranscriptSourceKind = "drive_export" // document export endpoint
)

// TranscriptSource is a platform-specific pointer to the transcript resource.
type TranscriptSource struct {
	Kind          TranscriptSourceKind `json:"kind"`
	DownloadURL   string               `json:"download_url,omitempty"`
	DownloadToken string               `json:"download_token,omitempty"`
	OrganizerID   string               `json:"organizer_id,omitempty"` // Graph user id owning the online meeting
	ResourceID    string               `json:"resource_id,omitempty"`  // Graph online meeting id
	TranscriptID  string               `json:"transcript_id,omitempty"`
	DocumentID    string               `json:"document_id,omitempty"` // Drive file id of the transcript document
}

// IsZero reports whether no source has been set.
func (s TranscriptSource) IsZero() bool {
	return s.Kind == ""
}
