// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	mock.Mock
}

func (m *MockAlertNotifier) SendDeadLetterAlert(ctx context.Context, alert models.DeadLetterAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}
