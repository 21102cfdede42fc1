// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
)

// Signature headers sent with every Zoom webhook delivery
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"

	// DefaultSignatureTolerance is how old a signed message may be.
	DefaultSignatureTolerance = 5 * time.Minute

	signatureVersion = "v1"
)

// ZoomAuthenticator verifies the HMAC-SHA256 signature of a Zoom webhook, computed over
// "{webhook-id}.{webhook-timestamp}.{body}" with the webhook secret token.
type ZoomAuthenticator struct {
	secretToken string
	tolerance   time.Duration
	now         func() time.Time
}

var _ domain.WebhookAuthenticator = (*ZoomAuthenticator)(nil)

// NewZoomAuthenticator creates a new Zoom webhook authenticator
func NewZoomAuthenticator(secretToken string, tolerance time.Duration) *ZoomAuthenticator {
	if tolerance <= 0 {
		tolerance = DefaultSignatureTolerance
	}
	return &ZoomAuthenticator{
		secretToken: secretToken,
		tolerance:   tolerance,
		now:         time.Now,
	}
}

// Sign returns the signature header value for a message.
func (a *ZoomAuthenticator) Sign(messageID, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(a.secretToken))
	h.Write([]byte(messageID + "." + timestamp + "."))
	h.Write(body)
	return signatureVersion + "," + base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// EncryptToken answers the endpoint.url_validation challenge: the hex HMAC-SHA256 of plainToken.
func (a *ZoomAuthenticator) EncryptToken(plainToken string) string {
	h := hmac.New(sha256.New, []byte(a.secretToken))
	h.Write([]byte(plainToken))
	return hex.EncodeToString(h.Sum(nil))
}

// Authenticate validates the signature headers of a delivery.
func (a *ZoomAuthenticator) Authenticate(ctx context.Context, headers http.Header, body []byte) error {
	if a.secretToken == "" {
		return domain.NewInternalError("zoom webhook secret token not configured")
	}

	messageID := headers.Get(HeaderWebhookID)
	timestamp := headers.Get(HeaderWebhookTimestamp)
	signature := headers.Get(HeaderWebhookSignature)
	if messageID == "" || timestamp == "" || signature == "" {
		return domain.NewUnauthorizedError("missing webhook signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.NewForbiddenError("invalid webhook timestamp", err)
	}
	age := a.now().Sub(time.Unix(ts, 0))
	if age > a.tolerance || age < -a.tolerance {
		slog.WarnContext(ctx, "zoom webhook outside of the signature window", "age", age.String())
		return domain.NewForbiddenError("webhook timestamp outside of the tolerance window")
	}

	expected := a.Sign(messageID, timestamp, body)
	// The header may carry several space separated signatures during secret rotation.
	for _, candidate := range strings.Fields(signature) {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}

	slog.WarnContext(ctx, "zoom webhook signature does not match expected signature")
	return domain.NewForbiddenError("invalid webhook signature")
}
