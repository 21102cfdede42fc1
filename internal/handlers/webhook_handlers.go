// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/constants"
)

// WebhookRouter resolves platform handlers and routes canonical events.
type WebhookRouter interface {
	Handler(platform models.Platform) (service.PlatformHandler, error)
	Route(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error)
	ServiceReady() bool
}

// ZoomChallengeSigner answers the Zoom endpoint validation challenge.
type ZoomChallengeSigner interface {
	EncryptToken(plainToken string) string
}

// WebhookMetrics records webhook deliveries.
type WebhookMetrics interface {
	ObserveWebhook(platform models.Platform, outcome string)
	ObserveAuthFailure(platform models.Platform)
}

// urlValidator is implemented by platform handlers that answer a URL validation challenge.
type urlValidator interface {
	URLValidation(body []byte) (plainToken string, ok bool, err error)
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Status   string                `json:"status"`
	Outcome  models.RouteOutcome   `json:"outcome,omitempty"`
	Outcomes []models.RouteOutcome `json:"outcomes,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// ZoomChallengeResponse answers an endpoint.url_validation event.
type ZoomChallengeResponse struct {
	PlainToken     string `json:"plainToken"`
	EncryptedToken string `json:"encryptedToken"`
}

// WebhookHandler receives platform webhooks. Every delivery that authenticates and
// parses is acknowledged with 200, whatever happens downstream: platforms redeliver on
// any other status and failures are retried internally instead.
type WebhookHandler struct {
	Router         WebhookRouter
	Authenticators domain.WebhookAuthenticatorRegistry
	ZoomChallenge  ZoomChallengeSigner
	Metrics        WebhookMetrics
}

func NewWebhookHandler(
	router WebhookRouter,
	authenticators domain.WebhookAuthenticatorRegistry,
	zoomChallenge ZoomChallengeSigner,
	metrics WebhookMetrics,
) *WebhookHandler {
	return &WebhookHandler{
		Router:         router,
		Authenticators: authenticators,
		ZoomChallenge:  zoomChallenge,
		Metrics:        metrics,
	}
}

func (h *WebhookHandler) HandlerReady() bool {
	return h.Router != nil && h.Router.ServiceReady() && h.Authenticators != nil
}

// HandleWebhook serves POST /webhooks/:platform.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	platform := models.Platform(ps.ByName("platform"))
	ctx := logging.AppendCtx(r.Context(), slog.String("platform", string(platform)))

	if !platform.IsValid() {
		writeJSON(ctx, w, http.StatusNotFound, WebhookResponse{Status: constants.WebhookStatusError, Message: "unknown platform"})
		return
	}

	// Graph validates a new subscription with an unauthenticated request that must be
	// echoed within seconds.
	if platform == models.PlatformTeams {
		if token := r.URL.Query().Get(constants.TeamsValidationTokenParam); token != "" {
			slog.InfoContext(ctx, "answering teams subscription validation")
			w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeText)
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, token)
			return
		}
	}

	body, err := h.readBody(r)
	if err != nil {
		slog.WarnContext(ctx, "failed to read webhook body", logging.ErrKey, err)
		h.reject(ctx, w, platform, http.StatusBadRequest, "unreadable body")
		return
	}

	handler, err := h.Router.Handler(platform)
	if err != nil {
		h.reject(ctx, w, platform, http.StatusNotFound, "platform not enabled")
		return
	}
	authenticator, err := h.Authenticators.GetAuthenticator(platform)
	if err != nil {
		slog.ErrorContext(ctx, "no webhook authenticator configured", logging.ErrKey, err)
		h.reject(ctx, w, platform, http.StatusNotFound, "platform not enabled")
		return
	}

	if err := authenticator.Authenticate(ctx, r.Header, body); err != nil {
		status := http.StatusUnauthorized
		if domain.GetErrorType(err) == domain.ErrorTypeForbidden {
			status = http.StatusForbidden
		}
		slog.WarnContext(ctx, "webhook authentication failed", logging.ErrKey, err, "status", status)
		if h.Metrics != nil {
			h.Metrics.ObserveAuthFailure(platform)
		}
		h.reject(ctx, w, platform, status, "authentication failed")
		return
	}

	if validator, ok := handler.(urlValidator); ok {
		plainToken, isChallenge, err := validator.URLValidation(body)
		if isChallenge {
			h.answerChallenge(ctx, w, platform, plainToken, err)
			return
		}
	}

	events, err := handler.Normalize(ctx, body)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeValidation {
			slog.WarnContext(ctx, "malformed webhook payload", logging.ErrKey, err)
			h.reject(ctx, w, platform, http.StatusBadRequest, err.Error())
			return
		}
		// nothing was recorded for retry, so ask the platform to redeliver
		slog.ErrorContext(ctx, "failed to normalize webhook", logging.ErrKey, err)
		h.observe(platform, string(models.OutcomeFailed))
		writeJSON(ctx, w, http.StatusServiceUnavailable, WebhookResponse{Status: constants.WebhookStatusError, Message: "webhook could not be processed, retry later"})
		return
	}
	if len(events) == 0 {
		h.observe(platform, constants.WebhookStatusIgnored)
		writeJSON(ctx, w, http.StatusOK, WebhookResponse{Status: constants.WebhookStatusIgnored, Message: "event not handled"})
		return
	}

	h.route(ctx, w, platform, events)
}

func (h *WebhookHandler) route(ctx context.Context, w http.ResponseWriter, platform models.Platform, events []*models.WebhookEvent) {
	outcomes := make([]models.RouteOutcome, 0, len(events))
	var invalid, failed error
	for _, event := range events {
		outcome, err := h.Router.Route(ctx, event)
		outcomes = append(outcomes, outcome)
		h.observe(platform, string(outcome))
		if err == nil {
			continue
		}
		if domain.GetErrorType(err) == domain.ErrorTypeValidation {
			invalid = err
		} else {
			failed = err
		}
	}

	if invalid != nil {
		slog.WarnContext(ctx, "webhook event rejected", logging.ErrKey, invalid)
		writeJSON(ctx, w, http.StatusBadRequest, WebhookResponse{Status: constants.WebhookStatusError, Outcomes: outcomes, Message: invalid.Error()})
		return
	}

	response := WebhookResponse{Status: constants.WebhookStatusOK}
	if len(outcomes) == 1 {
		response.Outcome = outcomes[0]
	} else {
		response.Outcomes = outcomes
	}
	if failed != nil {
		// The failure could not be recorded for retry. Events that did succeed are
		// skipped by the idempotency lock when the platform redelivers.
		slog.ErrorContext(ctx, "webhook event lost without redelivery", logging.ErrKey, failed)
		response.Status = constants.WebhookStatusError
		response.Message = "webhook could not be processed, retry later"
		writeJSON(ctx, w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *WebhookHandler) answerChallenge(ctx context.Context, w http.ResponseWriter, platform models.Platform, plainToken string, err error) {
	if err != nil {
		h.reject(ctx, w, platform, http.StatusBadRequest, err.Error())
		return
	}
	if h.ZoomChallenge == nil {
		slog.ErrorContext(ctx, "url validation requested but no challenge signer is configured")
		h.reject(ctx, w, platform, http.StatusNotFound, "platform not enabled")
		return
	}
	slog.InfoContext(ctx, "answering url validation challenge")
	writeJSON(ctx, w, http.StatusOK, ZoomChallengeResponse{
		PlainToken:     plainToken,
		EncryptedToken: h.ZoomChallenge.EncryptToken(plainToken),
	})
}

func (h *WebhookHandler) readBody(r *http.Request) ([]byte, error) {
	if body, ok := middleware.GetRawBodyFromContext(r.Context()); ok {
		return body, nil
	}
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, constants.MaxWebhookBodyBytes))
}

func (h *WebhookHandler) reject(ctx context.Context, w http.ResponseWriter, platform models.Platform, status int, message string) {
	h.observe(platform, "rejected")
	writeJSON(ctx, w, status, WebhookResponse{Status: constants.WebhookStatusError, Message: message})
}

func (h *WebhookHandler) observe(platform models.Platform, outcome string) {
	if h.Metrics != nil {
		h.Metrics.ObserveWebhook(platform, outcome)
	}
}
