// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

// DraftRequest is the input contract of the draft-generation collaborator.
type DraftRequest struct {
	MeetingID    string       `json:"meetingId"`
	TranscriptID string       `json:"transcriptId"`
	Context      DraftContext `json:"context"`
}

// DraftContext is the meeting context handed to the drafting step.
type DraftContext struct {
	Topic          string `json:"topic"`
	Date           string `json:"date"`
	HostName       string `json:"hostName"`
	TranscriptText string `json:"transcriptText"`
}

// DraftResult is the output contract of the draft-generation collaborator.
type DraftResult struct {
	Success      bool     `json:"success"`
	DraftID      string   `json:"draftId,omitempty"`
	Subject      string   `json:"subject,omitempty"`
	QualityScore *float64 `json:"qualityScore,omitempty"`
	Error        string   `json:"error,omitempty"`
}
