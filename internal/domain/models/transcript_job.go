// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// TranscriptJobStatus is the state of a background transcript job.
type TranscriptJobStatus string

// Job states
const (
	TranscriptJobStatusQueued    TranscriptJobStatus = "queued"
	TranscriptJobStatusRunning   TranscriptJobStatus = "running"
	TranscriptJobStatusSucceeded TranscriptJobStatus = "succeeded"
	TranscriptJobStatusFailed    TranscriptJobStatus = "failed"
)

// TranscriptJob is a queued transcript download. Jobs are keyed by meeting id so
// duplicate enqueues for one meeting collapse into a single logical job.
type TranscriptJob struct {
	ID          string              `json:"id"`
	MeetingID   string              `json:"meeting_id"`
	Platform    Platform            `json:"platform"`
	Source      TranscriptSource    `json:"source"`
	Status      TranscriptJobStatus `json:"status"`
	Attempts    int                 `json:"attempts"`
	MaxAttempts int                 `json:"max_attempts"`
	NextRunAt   time.Time           `json:"next_run_at"`
	LastError   string              `json:"last_error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// IsDue reports whether a queued job may run at now.
func (j *TranscriptJob) IsDue(now time.Time) bool {
	return j.Status == TranscriptJobStatusQueued && !j.NextRunAt.After(now)
}
