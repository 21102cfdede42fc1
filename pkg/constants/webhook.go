// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Webhook endpoint constants
const (
	// WebhookPathPrefix is the path every platform webhook is mounted under.
	WebhookPathPrefix = "/webhooks/"

	// MaxWebhookBodyBytes caps the body read from a webhook delivery.
	MaxWebhookBodyBytes int64 = 1 << 20

	// TeamsValidationTokenParam is the query parameter Microsoft Graph sends when a
	// subscription is created. The token must be echoed back as plain text.
	TeamsValidationTokenParam = "validationToken"
)

// Webhook response statuses
const (
	WebhookStatusOK      = "ok"
	WebhookStatusIgnored = "ignored"
	WebhookStatusError   = "error"
)
