// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/constants"
)

type fakePlatformHandler struct {
	platform     models.Platform
	events       []*models.WebhookEvent
	normalizeErr error
}

func (h *fakePlatformHandler) Platform() models.Platform { return h.platform }

func (h *fakePlatformHandler) Normalize(_ context.Context, _ []byte) ([]*models.WebhookEvent, error) {
	return h.events, h.normalizeErr
}

func (h *fakePlatformHandler) Handle(_ context.Context, _ *models.WebhookEvent) (models.RouteOutcome, error) {
	return models.OutcomeCreated, nil
}

// fakeZoomHandler answers a challenge when the body contains "url_validation".
type fakeZoomHandler struct {
	fakePlatformHandler
}

func (h *fakeZoomHandler) URLValidation(body []byte) (string, bool, error) {
	if !strings.Contains(string(body), "url_validation") {
		return "", false, nil
	}
	if strings.Contains(string(body), `"plainToken":""`) {
		return "", true, domain.NewValidationError("missing plainToken")
	}
	return "plain-123", true, nil
}

type routeResult struct {
	outcome models.RouteOutcome
	err     error
}

type fakeRouter struct {
	mu       sync.Mutex
	handlers map[models.Platform]service.PlatformHandler
	results  map[string]routeResult
	routed   []string
}

func (r *fakeRouter) Handler(platform models.Platform) (service.PlatformHandler, error) {
	h, ok := r.handlers[platform]
	if !ok {
		return nil, domain.NewNotFoundError("no handler registered for platform " + string(platform))
	}
	return h, nil
}

func (r *fakeRouter) Route(_ context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routed = append(r.routed, event.ExternalEventID)
	if result, ok := r.results[event.ExternalEventID]; ok {
		return result.outcome, result.err
	}
	return models.OutcomeCreated, nil
}

func (r *fakeRouter) ServiceReady() bool { return true }

type recordingWebhookMetrics struct {
	webhooks     []string
	authFailures int
}

func (m *recordingWebhookMetrics) ObserveWebhook(platform models.Platform, outcome string) {
	m.webhooks = append(m.webhooks, string(platform)+":"+outcome)
}

func (m *recordingWebhookMetrics) ObserveAuthFailure(models.Platform) { m.authFailures++ }

type prefixSigner struct{}

func (prefixSigner) EncryptToken(plainToken string) string { return "enc:" + plainToken }

type webhookFixture struct {
	handler *WebhookHandler
	router  *fakeRouter
	zoom    *fakeZoomHandler
	teams   *fakePlatformHandler
	auth    map[models.Platform]*mocks.MockWebhookAuthenticator
	metrics *recordingWebhookMetrics
	mux     *httprouter.Router
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	f := &webhookFixture{
		zoom:    &fakeZoomHandler{fakePlatformHandler{platform: models.PlatformZoom}},
		teams:   &fakePlatformHandler{platform: models.PlatformTeams},
		auth:    map[models.Platform]*mocks.MockWebhookAuthenticator{},
		metrics: &recordingWebhookMetrics{},
	}
	f.router = &fakeRouter{
		handlers: map[models.Platform]service.PlatformHandler{
			models.PlatformZoom:  f.zoom,
			models.PlatformTeams: f.teams,
		},
		results: map[string]routeResult{},
	}

	registry := webhook.NewRegistry()
	for _, platform := range []models.Platform{models.PlatformZoom, models.PlatformTeams} {
		authenticator := &mocks.MockWebhookAuthenticator{}
		registry.RegisterAuthenticator(platform, authenticator)
		f.auth[platform] = authenticator
	}

	f.handler = NewWebhookHandler(f.router, registry, prefixSigner{}, f.metrics)
	f.mux = httprouter.New()
	f.mux.POST("/webhooks/:platform", f.handler.HandleWebhook)
	return f
}

func (f *webhookFixture) allow(platform models.Platform) {
	f.auth[platform].On("Authenticate", mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

func (f *webhookFixture) post(target, body string) (*httptest.ResponseRecorder, WebhookResponse) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)

	var response WebhookResponse
	if strings.HasPrefix(w.Header().Get(constants.ContentTypeHeader), constants.ContentTypeJSON) {
		_ = json.Unmarshal(w.Body.Bytes(), &response)
	}
	return w, response
}

func zoomTestEvent(id string) *models.WebhookEvent {
	return &models.WebhookEvent{
		Platform:          models.PlatformZoom,
		Action:            models.ActionConferenceEnded,
		ExternalEventID:   id,
		PlatformMeetingID: "uuid-1",
	}
}

func TestWebhookHandler_UnknownPlatform(t *testing.T) {
	f := newWebhookFixture(t)

	w, response := f.post("/webhooks/webex", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, constants.WebhookStatusError, response.Status)
}

func TestWebhookHandler_PlatformNotEnabled(t *testing.T) {
	f := newWebhookFixture(t)

	w, _ := f.post("/webhooks/meet", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookHandler_TeamsSubscriptionValidation(t *testing.T) {
	f := newWebhookFixture(t)

	w, _ := f.post("/webhooks/teams?validationToken=Validation%3A+abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Validation: abc", w.Body.String())
	assert.Equal(t, constants.ContentTypeText, w.Header().Get(constants.ContentTypeHeader))
	f.auth[models.PlatformTeams].AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.router.routed)
}

func TestWebhookHandler_AuthenticationFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing credentials", err: domain.NewUnauthorizedError("missing signature"), wantStatus: http.StatusUnauthorized},
		{name: "invalid credentials", err: domain.NewForbiddenError("signature mismatch"), wantStatus: http.StatusForbidden},
		{name: "untyped failure", err: assert.AnError, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.zoom.events = []*models.WebhookEvent{zoomTestEvent("evt-1")}
			f.auth[models.PlatformZoom].On("Authenticate", mock.Anything, mock.Anything, []byte(`{"event":"meeting.ended"}`)).Return(tt.err)

			w, response := f.post("/webhooks/zoom", `{"event":"meeting.ended"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, constants.WebhookStatusError, response.Status)
			assert.Equal(t, 1, f.metrics.authFailures)
			assert.Empty(t, f.router.routed)
		})
	}
}

func TestWebhookHandler_ZoomURLValidation(t *testing.T) {
	f := newWebhookFixture(t)
	f.allow(models.PlatformZoom)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", strings.NewReader(`{"event":"endpoint.url_validation","payload":{"plainToken":"plain-123"}}`))
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var challenge ZoomChallengeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	assert.Equal(t, ZoomChallengeResponse{PlainToken: "plain-123", EncryptedToken: "enc:plain-123"}, challenge)
	assert.Empty(t, f.router.routed)

	w, _ = f.post("/webhooks/zoom", `{"event":"endpoint.url_validation","payload":{"plainToken":""}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookHandler_Normalize(t *testing.T) {
	t.Run("malformed payload", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.allow(models.PlatformZoom)
		f.zoom.normalizeErr = domain.NewValidationError("failed to parse zoom webhook", domain.ErrUnmarshal)

		w, response := f.post("/webhooks/zoom", `{not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, response.Message, "failed to parse zoom webhook")
	})

	t.Run("unexpected failure asks for redelivery", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.allow(models.PlatformZoom)
		f.zoom.normalizeErr = domain.NewInternalError("boom")

		w, response := f.post("/webhooks/zoom", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, constants.WebhookStatusError, response.Status)
	})

	t.Run("unhandled event is ignored", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.allow(models.PlatformZoom)

		w, response := f.post("/webhooks/zoom", `{"event":"meeting.participant_joined"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, constants.WebhookStatusIgnored, response.Status)
		assert.Equal(t, []string{"zoom:ignored"}, f.metrics.webhooks)
	})
}

func TestWebhookHandler_Route(t *testing.T) {
	tests := []struct {
		name        string
		result      *routeResult
		wantStatus  int
		wantBody    string
		wantOutcome models.RouteOutcome
	}{
		{
			name:        "event created",
			wantStatus:  http.StatusOK,
			wantBody:    constants.WebhookStatusOK,
			wantOutcome: models.OutcomeCreated,
		},
		{
			name:        "duplicate delivery",
			result:      &routeResult{outcome: models.OutcomeSkipped},
			wantStatus:  http.StatusOK,
			wantBody:    constants.WebhookStatusOK,
			wantOutcome: models.OutcomeSkipped,
		},
		{
			name:        "failure recorded for retry",
			result:      &routeResult{outcome: models.OutcomeFailed},
			wantStatus:  http.StatusOK,
			wantBody:    constants.WebhookStatusOK,
			wantOutcome: models.OutcomeFailed,
		},
		{
			name:        "failure that could not be recorded",
			result:      &routeResult{outcome: models.OutcomeFailed, err: domain.NewUnavailableError("nats: no responders")},
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    constants.WebhookStatusError,
			wantOutcome: models.OutcomeFailed,
		},
		{
			name:       "invalid event",
			result:     &routeResult{outcome: models.OutcomeFailed, err: domain.NewValidationError("missing meeting id")},
			wantStatus: http.StatusBadRequest,
			wantBody:   constants.WebhookStatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			f.allow(models.PlatformZoom)
			f.zoom.events = []*models.WebhookEvent{zoomTestEvent("evt-2")}
			if tt.result != nil {
				f.router.results["evt-2"] = *tt.result
			}

			w, response := f.post("/webhooks/zoom", `{"event":"meeting.ended"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, response.Status)
			assert.Equal(t, tt.wantOutcome, response.Outcome)
			assert.Equal(t, []string{"evt-2"}, f.router.routed)
		})
	}
}

func TestWebhookHandler_RoutesEveryNotification(t *testing.T) {
	f := newWebhookFixture(t)
	f.allow(models.PlatformTeams)
	f.teams.events = []*models.WebhookEvent{
		{Platform: models.PlatformTeams, ExternalEventID: "sub:created:a", PlatformMeetingID: "m-1"},
		{Platform: models.PlatformTeams, ExternalEventID: "sub:created:b", PlatformMeetingID: "m-2"},
	}
	f.router.results["sub:created:b"] = routeResult{outcome: models.OutcomeSkipped}

	w, response := f.post("/webhooks/teams", `{"value":[{},{}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, constants.WebhookStatusOK, response.Status)
	assert.Equal(t, []models.RouteOutcome{models.OutcomeCreated, models.OutcomeSkipped}, response.Outcomes)
	assert.Equal(t, []string{"teams:created", "teams:skipped"}, f.metrics.webhooks)
}

func TestWebhookHandler_UnrecordedFailureInBatch(t *testing.T) {
	f := newWebhookFixture(t)
	f.allow(models.PlatformTeams)
	f.teams.events = []*models.WebhookEvent{
		{Platform: models.PlatformTeams, ExternalEventID: "sub:created:a", PlatformMeetingID: "m-1"},
		{Platform: models.PlatformTeams, ExternalEventID: "sub:created:b", PlatformMeetingID: "m-2"},
	}
	f.router.results["sub:created:b"] = routeResult{
		outcome: models.OutcomeFailed,
		err:     domain.NewUnavailableError("failed to record webhook failure"),
	}

	w, response := f.post("/webhooks/teams", `{"value":[{},{}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, constants.WebhookStatusError, response.Status)
	assert.Equal(t, []models.RouteOutcome{models.OutcomeCreated, models.OutcomeFailed}, response.Outcomes)
	// every event is still routed before answering
	assert.Equal(t, []string{"sub:created:a", "sub:created:b"}, f.router.routed)
}

func TestWebhookHandler_UsesCapturedBody(t *testing.T) {
	f := newWebhookFixture(t)
	f.auth[models.PlatformZoom].On("Authenticate", mock.Anything, mock.Anything, []byte(`{"signed":true}`)).Return(nil)
	f.zoom.events = []*models.WebhookEvent{zoomTestEvent("evt-3")}

	handler := middleware.WebhookBodyCaptureMiddleware(0)(f.mux)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zoom", strings.NewReader(`{"signed":true}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	f.auth[models.PlatformZoom].AssertExpectations(t)
}
