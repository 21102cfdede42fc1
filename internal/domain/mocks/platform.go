// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// MockWebhookAuthenticator implements WebhookAuthenticator for testing
type MockWebhookAuthenticator struct {
	mock.Mock
}

func (m *MockWebhookAuthenticator) Authenticate(ctx context.Context, headers http.Header, body []byte) error {
	args := m.Called(ctx, headers, body)
	return args.Error(0)
}

// MockTranscriptFetcher implements TranscriptFetcher for testing
type MockTranscriptFetcher struct {
	mock.Mock
}

func (m *MockTranscriptFetcher) FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error) {
	args := m.Called(ctx, source)
	return args.String(0), args.Error(1)
}

// MockTeamsMeetingResolver implements TeamsMeetingResolver for testing
type MockTeamsMeetingResolver struct {
	mock.Mock
}

func (m *MockTeamsMeetingResolver) GetOnlineMeeting(ctx context.Context, organizerID, meetingID string) (*models.TeamsOnlineMeeting, error) {
	args := m.Called(ctx, organizerID, meetingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TeamsOnlineMeeting), args.Error(1)
}

// MockDraftGenerator implements DraftGenerator for testing
type MockDraftGenerator struct {
	mock.Mock
}

func (m *MockDraftGenerator) GenerateDraft(ctx context.Context, request models.DraftRequest) (*models.DraftResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DraftResult), args.Error(1)
}

// MockCaptionArchive implements CaptionArchive for testing
type MockCaptionArchive struct {
	mock.Mock
}

func (m *MockCaptionArchive) Store(ctx context.Context, key string, content []byte) error {
	args := m.Called(ctx, key, content)
	return args.Error(0)
}

func (m *MockCaptionArchive) Load(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
