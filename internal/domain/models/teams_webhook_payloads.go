// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// Microsoft Graph resource types carried in change notifications
const (
	TeamsResourceCallTranscript = "#microsoft.graph.callTranscript"
	TeamsResourceCallRecording  = "#microsoft.graph.callRecording"
	TeamsResourceCallEnded      = "#microsoft.graph.callEndedEventMessageDetail"
)

// TeamsNotificationCollection is the body Microsoft Graph posts for change notifications.
type TeamsNotificationCollection struct {
	Value            []TeamsChangeNotification `json:"value" validate:"required,min=1,dive"`
	ValidationTokens []string                  `json:"validationTokens,omitempty"`
}

// TeamsChangeNotification is a single Graph change notification.
type TeamsChangeNotification struct {
	SubscriptionID                 string              `json:"subscriptionId" validate:"required"`
	ChangeType                     string              `json:"changeType" validate:"required"`
	Resource                       string              `json:"resource" validate:"required"`
	ResourceData                   TeamsResourceData   `json:"resourceData"`
	ClientState                    string              `json:"clientState,omitempty"`
	TenantID                       string              `json:"tenantId,omitempty"`
	SubscriptionExpirationDateTime *time.Time          `json:"subscriptionExpirationDateTime,omitempty"`
	EncryptedContent               *TeamsEncryptedData `json:"encryptedContent,omitempty"`
}

// TeamsResourceData identifies the changed resource.
type TeamsResourceData struct {
	ODataType string `json:"@odata.type" validate:"required"`
	ODataID   string `json:"@odata.id,omitempty"`
	ID        string `json:"id,omitempty"`
}

// TeamsEncryptedData is present on rich notifications; the service does not decrypt it.
type TeamsEncryptedData struct {
	DataKey                 string `json:"dataKey,omitempty"`
	EncryptionCertificateID string `json:"encryptionCertificateId,omitempty"`
}

// TeamsOnlineMeeting is the subset of the Graph onlineMeeting resource the service reads.
type TeamsOnlineMeeting struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	StartDateTime time.Time `json:"startDateTime"`
	EndDateTime   time.Time `json:"endDateTime"`
	Participants  struct {
		Organizer struct {
			UPN      string `json:"upn"`
			Identity struct {
				User struct {
					ID          string `json:"id"`
					DisplayName string `json:"displayName"`
				} `json:"user"`
			} `json:"identity"`
		} `json:"organizer"`
	} `json:"participants"`
}

// TeamsTranscriptMetadata is an entry of the Graph transcripts list.
type TeamsTranscriptMetadata struct {
	ID                string    `json:"id"`
	MeetingID         string    `json:"meetingId"`
	CreatedDateTime   time.Time `json:"createdDateTime"`
	EndDateTime       time.Time `json:"endDateTime"`
	TranscriptContent string    `json:"transcriptContentUrl,omitempty"`
}
