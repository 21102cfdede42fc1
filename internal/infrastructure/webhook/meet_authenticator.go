// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
)

// MeetAuthenticator checks the shared bearer token configured on the Pub/Sub push subscription.
type MeetAuthenticator struct {
	token string
}

var _ domain.WebhookAuthenticator = (*MeetAuthenticator)(nil)

// NewMeetAuthenticator creates a new Meet webhook authenticator
func NewMeetAuthenticator(token string) *MeetAuthenticator {
	return &MeetAuthenticator{token: token}
}

// Authenticate compares the bearer token in constant time.
func (a *MeetAuthenticator) Authenticate(ctx context.Context, headers http.Header, body []byte) error {
	if a.token == "" {
		return domain.NewInternalError("meet webhook token not configured")
	}
	token, err := bearerToken(headers)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return domain.NewForbiddenError("invalid webhook token")
	}
	return nil
}
