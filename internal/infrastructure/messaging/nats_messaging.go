// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// INatsConn is the subset of a NATS connection the message builder needs.
type INatsConn interface {
	IsConnected() bool
	Publish(subj string, data []byte) error
}

// MessageBuilder is the builder for the message and sends it to the NATS server.
type MessageBuilder struct {
	NatsConn INatsConn
}

var _ domain.MessageBuilder = (*MessageBuilder)(nil)

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder(natsConn INatsConn) *MessageBuilder {
	return &MessageBuilder{
		NatsConn: natsConn,
	}
}

// sendMessage sends the message to the NATS server.
func (m *MessageBuilder) sendMessage(ctx context.Context, subject string, data []byte) error {
	if m.NatsConn == nil {
		return domain.NewUnavailableError("NATS connection is not configured", domain.ErrServiceUnavailable)
	}
	err := m.NatsConn.Publish(subject, data)
	if err != nil {
		slog.ErrorContext(ctx, "error sending message to NATS", logging.ErrKey, err, "subject", subject)
		return err
	}
	slog.DebugContext(ctx, "sent message to NATS", "subject", subject)
	return nil
}

// SendTranscriptJobEnqueued wakes the transcript job dispatcher up. The notification is
// msgpack-encoded; the job itself lives in the key-value store.
func (m *MessageBuilder) SendTranscriptJobEnqueued(ctx context.Context, notification models.TranscriptJobNotification) error {
	dataBytes, err := msgpack.Marshal(notification)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling job notification into msgpack", logging.ErrKey, err)
		return err
	}

	return m.sendMessage(ctx, models.TranscriptJobEnqueuedSubject, dataBytes)
}

// SendMeetingUpdated publishes a meeting status change.
func (m *MessageBuilder) SendMeetingUpdated(ctx context.Context, data models.MeetingUpdatedMessage) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling data into JSON", logging.ErrKey, err)
		return err
	}

	return m.sendMessage(ctx, models.MeetingUpdatedSubject, dataBytes)
}

// DecodeTranscriptJobNotification decodes a wake-up message sent by SendTranscriptJobEnqueued.
func DecodeTranscriptJobNotification(data []byte) (models.TranscriptJobNotification, error) {
	var notification models.TranscriptJobNotification
	if err := msgpack.Unmarshal(data, &notification); err != nil {
		return notification, domain.NewValidationError("malformed transcript job notification", domain.ErrUnmarshal, err)
	}
	return notification, nil
}
