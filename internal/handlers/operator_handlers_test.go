// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
)

type mockDeadLetterOperator struct {
	mock.Mock
}

func (m *mockDeadLetterOperator) ListDeadLetters(ctx context.Context, includeResolved bool) ([]*models.DeadLetterEntry, error) {
	args := m.Called(ctx, includeResolved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DeadLetterEntry), args.Error(1)
}

func (m *mockDeadLetterOperator) RetryDeadLetter(ctx context.Context, id, note string) (*models.WebhookFailure, error) {
	args := m.Called(ctx, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookFailure), args.Error(1)
}

func (m *mockDeadLetterOperator) Stats(ctx context.Context) ([]models.PlatformFailureStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PlatformFailureStats), args.Error(1)
}

type mockReprocessor struct {
	mock.Mock
}

func (m *mockReprocessor) ReprocessMeeting(ctx context.Context, meetingID string) (*models.Meeting, *models.TranscriptJob, error) {
	args := m.Called(ctx, meetingID)
	meeting, _ := args.Get(0).(*models.Meeting)
	job, _ := args.Get(1).(*models.TranscriptJob)
	return meeting, job, args.Error(2)
}

type fixedPrincipal string

func (p fixedPrincipal) ParsePrincipal(context.Context, string, *slog.Logger) (string, error) {
	return string(p), nil
}

func newOperatorMux(h *OperatorHandler, principal string) http.Handler {
	auth := middleware.BearerAuthMiddleware(fixedPrincipal(principal))
	wrap := func(handle httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, ps)
			})).ServeHTTP(w, r)
		}
	}

	mux := httprouter.New()
	mux.GET("/operator/dead-letters", wrap(h.ListDeadLetters))
	mux.POST("/operator/dead-letters/:id/retry", wrap(h.RetryDeadLetter))
	mux.GET("/operator/stats", wrap(h.Stats))
	mux.POST("/operator/meetings/:id/reprocess", wrap(h.ReprocessMeeting))
	return mux
}

func operatorRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	return req
}

func TestOperatorHandler_ListDeadLetters(t *testing.T) {
	tests := []struct {
		name            string
		query           string
		includeResolved bool
		entries         []*models.DeadLetterEntry
		wantStatus      int
		wantTotal       int
	}{
		{
			name:       "open entries",
			entries:    []*models.DeadLetterEntry{{ID: "f-1", Platform: models.PlatformZoom}},
			wantStatus: http.StatusOK,
			wantTotal:  1,
		},
		{
			name:            "including resolved",
			query:           "?include_resolved=true",
			includeResolved: true,
			entries:         []*models.DeadLetterEntry{{ID: "f-1"}, {ID: "f-2", Resolved: true}},
			wantStatus:      http.StatusOK,
			wantTotal:       2,
		},
		{
			name:       "empty queue",
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad flag",
			query:      "?include_resolved=maybe",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operator := &mockDeadLetterOperator{}
			if tt.wantStatus == http.StatusOK {
				operator.On("ListDeadLetters", mock.Anything, tt.includeResolved).Return(tt.entries, nil).Once()
			}
			mux := newOperatorMux(NewOperatorHandler(operator, &mockReprocessor{}), "ops")

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, operatorRequest(http.MethodGet, "/operator/dead-letters"+tt.query, ""))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				var response DeadLettersResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, tt.wantTotal, response.Total)
				assert.NotNil(t, response.DeadLetters)
			}
			operator.AssertExpectations(t)
		})
	}
}

func TestOperatorHandler_RetryDeadLetter(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantNote   string
		err        error
		wantStatus int
	}{
		{
			name:       "note is attributed to the operator",
			body:       `{"note":"zoom outage over"}`,
			wantNote:   "zoom outage over (ops)",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "empty body",
			wantNote:   "retried by ops",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "already resolved",
			body:       `{"note":"again"}`,
			wantNote:   "again (ops)",
			err:        domain.NewConflictError("dead letter already resolved"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "unknown entry",
			wantNote:   "retried by ops",
			err:        domain.NewNotFoundError("dead letter not found"),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "malformed body",
			body:       `{"note":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			operator := &mockDeadLetterOperator{}
			if tt.wantNote != "" {
				var failure *models.WebhookFailure
				if tt.err == nil {
					failure = &models.WebhookFailure{ID: "retry-1", ReplayOf: "f-1", Status: models.WebhookFailureStatusPending}
				}
				operator.On("RetryDeadLetter", mock.Anything, "f-1", tt.wantNote).Return(failure, tt.err).Once()
			}
			mux := newOperatorMux(NewOperatorHandler(operator, &mockReprocessor{}), "ops")

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, operatorRequest(http.MethodPost, "/operator/dead-letters/f-1/retry", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			operator.AssertExpectations(t)
		})
	}
}

func TestOperatorHandler_Stats(t *testing.T) {
	operator := &mockDeadLetterOperator{}
	operator.On("Stats", mock.Anything).Return([]models.PlatformFailureStats{
		{Platform: models.PlatformZoom, Total: 3, DeadLettered: 1},
	}, nil)
	mux := newOperatorMux(NewOperatorHandler(operator, &mockReprocessor{}), "ops")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, operatorRequest(http.MethodGet, "/operator/stats", ""))

	require.Equal(t, http.StatusOK, w.Code)
	var response StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Platforms, 1)
	assert.Equal(t, 3, response.Platforms[0].Total)
}

func TestOperatorHandler_ReprocessMeeting(t *testing.T) {
	tests := []struct {
		name       string
		meeting    *models.Meeting
		job        *models.TranscriptJob
		err        error
		wantStatus int
	}{
		{
			name:       "requeued",
			meeting:    &models.Meeting{ID: "m-1", Status: models.MeetingStatusPending},
			job:        &models.TranscriptJob{ID: "m-1", Status: models.TranscriptJobStatusQueued},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "meeting in flight",
			err:        domain.NewConflictError("meeting is still being processed: processing"),
			wantStatus: http.StatusConflict,
		},
		{
			name:       "internal failure hides details",
			err:        domain.NewInternalError("nats: connection closed"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reprocessor := &mockReprocessor{}
			reprocessor.On("ReprocessMeeting", mock.Anything, "m-1").Return(tt.meeting, tt.job, tt.err)
			mux := newOperatorMux(NewOperatorHandler(&mockDeadLetterOperator{}, reprocessor), "ops")

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, operatorRequest(http.MethodPost, "/operator/meetings/m-1/reprocess", ""))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "nats")
			}
			if tt.wantStatus == http.StatusAccepted {
				var response ReprocessResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
				assert.Equal(t, models.MeetingStatusPending, response.Meeting.Status)
				assert.Equal(t, models.TranscriptJobStatusQueued, response.Job.Status)
			}
		})
	}
}

func TestOperatorHandler_RequiresToken(t *testing.T) {
	operator := &mockDeadLetterOperator{}
	mux := newOperatorMux(NewOperatorHandler(operator, &mockReprocessor{}), "ops")

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operator/stats", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	operator.AssertNotCalled(t, "Stats", mock.Anything)
}
