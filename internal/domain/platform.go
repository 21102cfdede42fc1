// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// WebhookAuthenticator verifies that a webhook request was sent by the platform.
// Implementations return an UnauthorizedError when credentials are missing and a
// ForbiddenError when they are present but invalid.
type WebhookAuthenticator interface {
	Authenticate(ctx context.Context, headers http.Header, body []byte) error
}

// WebhookAuthenticatorRegistry resolves the authenticator of a platform.
type WebhookAuthenticatorRegistry interface {
	GetAuthenticator(platform models.Platform) (WebhookAuthenticator, error)
	RegisterAuthenticator(platform models.Platform, authenticator WebhookAuthenticator)
}

// TranscriptFetcher downloads the raw caption text a transcript source points to.
// A NotReadyError means the platform has not finished producing the transcript.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error)
}

// TeamsMeetingResolver looks up the online meeting details a Teams notification refers to.
type TeamsMeetingResolver interface {
	GetOnlineMeeting(ctx context.Context, organizerID, meetingID string) (*models.TeamsOnlineMeeting, error)
}

// DraftGenerator is the draft-generation collaborator.
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, request models.DraftRequest) (*models.DraftResult, error)
}

// CaptionArchive keeps a copy of the raw caption file of every stored transcript.
type CaptionArchive interface {
	Store(ctx context.Context, key string, content []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}
