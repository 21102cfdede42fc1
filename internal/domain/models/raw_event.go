// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"time"
)

// RawEventStatus is the processing state of a received webhook.
type RawEventStatus string

// RawEvent states. Processed and failed are terminal for a record.
const (
	RawEventStatusPending    RawEventStatus = "pending"
	RawEventStatusProcessing RawEventStatus = "processing"
	RawEventStatusProcessed  RawEventStatus = "processed"
	RawEventStatusFailed     RawEventStatus = "failed"
)

// IsTerminal reports whether the record can no longer change.
func (s RawEventStatus) IsTerminal() bool {
	return s == RawEventStatusProcessed || s == RawEventStatusFailed
}

// RawEvent is the append-only audit record of a received webhook.
type RawEvent struct {
	ID              string          `json:"id"`
	Platform        Platform        `json:"platform"`
	EventType       string          `json:"event_type"`
	ExternalEventID string          `json:"external_event_id"` // idempotency key
	Payload         json.RawMessage `json:"payload"`
	Status          RawEventStatus  `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
