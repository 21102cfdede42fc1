// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// SMTPConfig holds the SMTP server configuration
type SMTPConfig struct {
	Host       string
	Port       int
	From       string
	Username   string // Optional for authenticated SMTP
	Password   string // Optional for authenticated SMTP
	Recipients []string
}

// SMTPNotifier sends dead letter alerts by email
type SMTPNotifier struct {
	config     SMTPConfig
	deadLetter TemplateSet
	now        func() time.Time
}

var _ domain.AlertNotifier = (*SMTPNotifier)(nil)

// NewSMTPNotifier creates a new SMTP alert notifier
func NewSMTPNotifier(config SMTPConfig) (*SMTPNotifier, error) {
	if config.Host == "" {
		return nil, domain.NewValidationError("SMTP host is required")
	}
	if len(config.Recipients) == 0 {
		return nil, domain.NewValidationError("at least one alert recipient is required")
	}

	deadLetter, err := loadTemplateSet("dead_letter_alert")
	if err != nil {
		return nil, err
	}

	return &SMTPNotifier{
		config:     config,
		deadLetter: deadLetter,
		now:        time.Now,
	}, nil
}

// RenderDeadLetterAlert renders the alert email without sending it
func (s *SMTPNotifier) RenderDeadLetterAlert(alert models.DeadLetterAlert) (*RenderedEmail, error) {
	rendered, err := s.deadLetter.render(deadLetterAlertData{DeadLetterAlert: alert, SentAt: s.now()})
	if err != nil {
		return nil, err
	}
	rendered.Subject = fmt.Sprintf("Dead-lettered webhook: %s %s", alert.Platform, alert.EventType)
	return rendered, nil
}

// SendDeadLetterAlert emails the alert to every configured recipient
func (s *SMTPNotifier) SendDeadLetterAlert(ctx context.Context, alert models.DeadLetterAlert) error {
	ctx = logging.AppendCtx(ctx, slog.String("dead_letter_id", alert.ID))
	ctx = logging.AppendCtx(ctx, slog.String("platform", alert.Platform.String()))
	ctx = logging.AppendCtx(ctx, slog.Int("recipient_count", len(s.config.Recipients)))

	rendered, err := s.RenderDeadLetterAlert(alert)
	if err != nil {
		slog.ErrorContext(ctx, "failed to render dead letter alert", logging.ErrKey, err)
		return domain.NewInternalError("failed to render dead letter alert", err)
	}

	message := alertMessage{
		From:        s.config.From,
		Recipients:  s.config.Recipients,
		Subject:     rendered.Subject,
		Text:        rendered.Text,
		HTML:        rendered.HTML,
		ReferenceID: alert.ID,
		Date:        time.Now(),
	}

	if err := deliver(s.config, s.config.Recipients, message.Bytes()); err != nil {
		slog.ErrorContext(ctx, "failed to send dead letter alert", logging.ErrKey, err, logging.PriorityCritical())
		return domain.NewUnavailableError("failed to send dead letter alert", err)
	}

	slog.InfoContext(ctx, "dead letter alert sent")
	return nil
}
