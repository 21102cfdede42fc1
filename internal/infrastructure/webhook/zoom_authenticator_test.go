// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
)

func signedHeaders(a *ZoomAuthenticator, id string, ts time.Time, body []byte) http.Header {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	headers := http.Header{}
	headers.Set(HeaderWebhookID, id)
	headers.Set(HeaderWebhookTimestamp, timestamp)
	headers.Set(HeaderWebhookSignature, a.Sign(id, timestamp, body))
	return headers
}

func TestZoomAuthenticator_Authenticate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event":"recording.transcript_completed"}`)

	authenticator := NewZoomAuthenticator("secret", 0)
	authenticator.now = func() time.Time { return now }

	t.Run("valid signature", func(t *testing.T) {
		err := authenticator.Authenticate(ctx, signedHeaders(authenticator, "msg-1", now.Add(-time.Minute), body), body)
		assert.NoError(t, err)
	})

	t.Run("missing headers", func(t *testing.T) {
		err := authenticator.Authenticate(ctx, http.Header{}, body)
		assert.Equal(t, domain.ErrorTypeUnauthorized, domain.GetErrorType(err))
	})

	t.Run("stale message", func(t *testing.T) {
		err := authenticator.Authenticate(ctx, signedHeaders(authenticator, "msg-1", now.Add(-6*time.Minute), body), body)
		assert.Equal(t, domain.ErrorTypeForbidden, domain.GetErrorType(err))
	})

	t.Run("message from the future", func(t *testing.T) {
		err := authenticator.Authenticate(ctx, signedHeaders(authenticator, "msg-1", now.Add(10*time.Minute), body), body)
		assert.Equal(t, domain.ErrorTypeForbidden, domain.GetErrorType(err))
	})

	t.Run("tampered body", func(t *testing.T) {
		headers := signedHeaders(authenticator, "msg-1", now, body)
		err := authenticator.Authenticate(ctx, headers, []byte(`{"event":"meeting.ended"}`))
		assert.Equal(t, domain.ErrorTypeForbidden, domain.GetErrorType(err))
	})

	t.Run("message id is part of the signature", func(t *testing.T) {
		headers := signedHeaders(authenticator, "msg-1", now, body)
		headers.Set(HeaderWebhookID, "msg-2")
		err := authenticator.Authenticate(ctx, headers, body)
		assert.Equal(t, domain.ErrorTypeForbidden, domain.GetErrorType(err))
	})

	t.Run("rotated secret signature list", func(t *testing.T) {
		old := NewZoomAuthenticator("old-secret", 0)
		headers := signedHeaders(authenticator, "msg-1", now, body)
		timestamp := headers.Get(HeaderWebhookTimestamp)
		headers.Set(HeaderWebhookSignature, old.Sign("msg-1", timestamp, body)+" "+authenticator.Sign("msg-1", timestamp, body))

		assert.NoError(t, authenticator.Authenticate(ctx, headers, body))
	})

	t.Run("non numeric timestamp", func(t *testing.T) {
		headers := signedHeaders(authenticator, "msg-1", now, body)
		headers.Set(HeaderWebhookTimestamp, "yesterday")
		err := authenticator.Authenticate(ctx, headers, body)
		assert.Equal(t, domain.ErrorTypeForbidden, domain.GetErrorType(err))
	})

	t.Run("secret not configured", func(t *testing.T) {
		err := NewZoomAuthenticator("", 0).Authenticate(ctx, http.Header{}, body)
		assert.Equal(t, domain.ErrorTypeInternal, domain.GetErrorType(err))
	})
}

func TestZoomAuthenticator_EncryptToken(t *testing.T) {
	h := hmac.New(sha256.New, []byte("secret"))
	h.Write([]byte("plain-token"))

	assert.Equal(t, hex.EncodeToString(h.Sum(nil)), NewZoomAuthenticator("secret", 0).EncryptToken("plain-token"))
}
