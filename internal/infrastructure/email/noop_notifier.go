// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// NoOpNotifier is used when SMTP is not configured. It only logs the alert.
type NoOpNotifier struct{}

var _ domain.AlertNotifier = (*NoOpNotifier)(nil)

// NewNoOpNotifier creates a new no-op alert notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// SendDeadLetterAlert logs the alert but doesn't send an email
func (n *NoOpNotifier) SendDeadLetterAlert(ctx context.Context, alert models.DeadLetterAlert) error {
	ctx = logging.AppendCtx(ctx, slog.String("dead_letter_id", alert.ID))
	ctx = logging.AppendCtx(ctx, slog.String("platform", alert.Platform.String()))

	slog.WarnContext(ctx, "alert email disabled, dead letter alert logged only",
		"event_type", alert.EventType,
		"total_attempts", alert.TotalAttempts,
		logging.ErrKey, alert.Error,
		logging.PriorityCritical(),
	)
	return nil
}
