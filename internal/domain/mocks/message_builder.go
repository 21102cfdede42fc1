// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// MockMessageBuilder implements MessageBuilder for testing
type MockMessageBuilder struct {
	mock.Mock
}

func (m *MockMessageBuilder) SendTranscriptJobEnqueued(ctx context.Context, notification models.TranscriptJobNotification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockMessageBuilder) SendMeetingUpdated(ctx context.Context, message models.MeetingUpdatedMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}
