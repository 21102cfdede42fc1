// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies one of the supported conferencing sources.
type Platform string

// Supported platforms
const (
	PlatformZoom  Platform = "zoom"
	PlatformTeams Platform = "teams"
	PlatformMeet  Platform = "meet"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformZoom, PlatformTeams, PlatformMeet}

// IsValid reports whether the platform is one of the supported sources.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformZoom, PlatformTeams, PlatformMeet:
		return true
	}
	return false
}

func (p Platform) String() string {
	return string(p)
}

// MeetingStatus is the lifecycle state of a canonical meeting record.
type MeetingStatus string

// Meeting lifecycle states
const (
	MeetingStatusPending    MeetingStatus = "pending"    // row exists, no transcript yet
	MeetingStatusProcessing MeetingStatus = "processing" // transcript fetch in flight
	MeetingStatusReady      MeetingStatus = "ready"      // transcript persisted
	MeetingStatusCompleted  MeetingStatus = "completed"  // draft generation attempted
	MeetingStatusFailed     MeetingStatus = "failed"     // unrecoverable error
)

// Rank orders the states so that merges and transitions only move forward.
// Failed outranks everything so it is absorbing under merge.
func (s MeetingStatus) Rank() int {
	switch s {
	case MeetingStatusProcessing:
		return 1
	case MeetingStatusReady:
		return 2
	case MeetingStatusCompleted:
		return 3
	case MeetingStatusFailed:
		return 4
	default:
		return 0
	}
}

// IsTerminal reports whether no further automatic transition is allowed.
func (s MeetingStatus) IsTerminal() bool {
	return s == MeetingStatusCompleted || s == MeetingStatusFailed
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == MeetingStatusFailed {
		return true
	}
	return next.Rank() > s.Rank()
}

// Processing steps reported through Meeting.ProcessingStep. They are advisory only.
const (
	ProcessingStepReceived    = "received"
	ProcessingStepQueued      = "queued"
	ProcessingStepDownloading = "downloading"
	ProcessingStepParsing     = "parsing"
	ProcessingStepStoring     = "storing"
	ProcessingStepDrafting    = "drafting"
	ProcessingStepDone        = "done"
	ProcessingStepFailed      = "failed"
)

// Meeting is the canonical, platform-agnostic meeting record.
type Meeting struct {
	ID                 string        `json:"id"`
	Platform           Platform      `json:"platform"`
	PlatformMeetingID  string        `json:"platform_meeting_id"` // unique per platform, upsert key
	HostEmail          string        `json:"host_email,omitempty"`
	HostName           string        `json:"host_name,omitempty"`
	Topic              string        `json:"topic,omitempty"`
	StartTime          *time.Time    `json:"start_time,omitempty"`
	EndTime            *time.Time    `json:"end_time,omitempty"`
	Status             MeetingStatus `json:"status"`
	ProcessingStep     string        `json:"processing_step,omitempty"`
	ProcessingProgress int           `json:"processing_progress"`
	LastError          string        `json:"last_error,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// meetingNamespace scopes deterministic meeting ids.
var meetingNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://lfx.linuxfoundation.org/meeting-transcript/meetings"))

// MeetingIDFor returns the deterministic id of the meeting identified by platform and
// platform meeting id, so concurrent creators agree on the same row.
func MeetingIDFor(platform Platform, platformMeetingID string) string {
	return uuid.NewSHA1(meetingNamespace, []byte(string(platform)+":"+platformMeetingID)).String()
}

// MergeMeeting combines two observations of the same meeting. The result does not
// depend on argument order, which is what makes out-of-order lifecycle events converge.
// UpdatedAt is owned by the store and is not merged.
func MergeMeeting(a, b Meeting) Meeting {
	merged := Meeting{
		ID:                mergeString(a.ID, b.ID),
		Platform:          Platform(mergeString(string(a.Platform), string(b.Platform))),
		PlatformMeetingID: mergeString(a.PlatformMeetingID, b.PlatformMeetingID),
		HostEmail:         mergeString(a.HostEmail, b.HostEmail),
		HostName:          mergeString(a.HostName, b.HostName),
		Topic:             mergeString(a.Topic, b.Topic),
		StartTime:         earliest(a.StartTime, b.StartTime),
		EndTime:           latest(a.EndTime, b.EndTime),
		LastError:         mergeString(a.LastError, b.LastError),
		CreatedAt:         earliestValue(a.CreatedAt, b.CreatedAt),
	}

	switch {
	case a.Status.Rank() > b.Status.Rank():
		merged.Status, merged.ProcessingStep, merged.ProcessingProgress = a.Status, a.ProcessingStep, a.ProcessingProgress
	case b.Status.Rank() > a.Status.Rank():
		merged.Status, merged.ProcessingStep, merged.ProcessingProgress = b.Status, b.ProcessingStep, b.ProcessingProgress
	default:
		merged.Status = a.Status
		if merged.Status == "" {
			merged.Status = MeetingStatusPending
		}
		merged.ProcessingProgress = max(a.ProcessingProgress, b.ProcessingProgress)
		merged.ProcessingStep = mergeString(a.ProcessingStep, b.ProcessingStep)
	}

	return merged
}

// mergeString keeps the non-empty value; two different values resolve to the greater one.
func mergeString(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a >= b {
		return a
	}
	return b
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	default:
		return a
	}
}

func earliestValue(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
