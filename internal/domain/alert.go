// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// AlertNotifier delivers operator alerts for dead-lettered webhook events.
type AlertNotifier interface {
	SendDeadLetterAlert(ctx context.Context, alert models.DeadLetterAlert) error
}
