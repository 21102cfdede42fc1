// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"time"
)

// WebhookFailureStatus is the retry state of a failed webhook.
type WebhookFailureStatus string

// WebhookFailure states
const (
	WebhookFailureStatusPending    WebhookFailureStatus = "pending"
	WebhookFailureStatusRetrying   WebhookFailureStatus = "retrying"
	WebhookFailureStatusCompleted  WebhookFailureStatus = "completed"
	WebhookFailureStatusDeadLetter WebhookFailureStatus = "dead_letter"
)

// FailureAttempt is one entry of a failure's attempt log.
type FailureAttempt struct {
	Attempt  int       `json:"attempt"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// WebhookFailure records a handler error and its retry schedule.
type WebhookFailure struct {
	ID          string               `json:"id"`
	Platform    Platform             `json:"platform"`
	EventType   string               `json:"event_type"`
	RawEventID  string               `json:"raw_event_id,omitempty"`
	Payload     json.RawMessage      `json:"payload"` // canonical WebhookEvent
	Error       string               `json:"error"`
	Attempts    int                  `json:"attempts"`
	MaxAttempts int                  `json:"max_attempts"`
	NextRetryAt time.Time            `json:"next_retry_at"`
	Status      WebhookFailureStatus `json:"status"`
	History     []FailureAttempt     `json:"history"`
	ReplayOf    string               `json:"replay_of,omitempty"` // dead letter id this failure was created from
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// DeadLetterEntry is a failure that exhausted its retry budget.
type DeadLetterEntry struct {
	ID             string           `json:"id"`
	FailureID      string           `json:"failure_id"`
	Platform       Platform         `json:"platform"`
	EventType      string           `json:"event_type"`
	Payload        json.RawMessage  `json:"payload"`
	Error          string           `json:"error"`
	TotalAttempts  int              `json:"total_attempts"`
	FailureHistory []FailureAttempt `json:"failure_history"`
	Resolved       bool             `json:"resolved"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
	ResolutionNote string           `json:"resolution_note,omitempty"`
	AlertSent      bool             `json:"alert_sent"`
	AlertSentAt    *time.Time       `json:"alert_sent_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// DeadLetterAlert is what the alert channel receives when an entry is created.
type DeadLetterAlert struct {
	ID            string   `json:"id"`
	Platform      Platform `json:"platform"`
	EventType     string   `json:"event_type"`
	TotalAttempts int      `json:"total_attempts"`
	Error         string   `json:"error"`
}

// PlatformFailureStats aggregates failure counters for one platform.
type PlatformFailureStats struct {
	Platform     Platform `json:"platform"`
	Total        int      `json:"total"`
	Pending      int      `json:"pending"`
	Failed       int      `json:"failed"` // failures still being retried or awaiting retry
	DeadLettered int      `json:"dead_lettered"`
	Completed    int      `json:"completed"`
}
