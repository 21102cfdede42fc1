// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// Message represents a domain message interface
type Message interface {
	Subject() string
	Data() []byte
	Respond(data []byte) error
	HasReply() bool
}

// MessageHandler defines how the service handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandlerReady() bool
}

// TranscriptJobNotifier wakes the transcript job dispatcher up.
type TranscriptJobNotifier interface {
	SendTranscriptJobEnqueued(ctx context.Context, notification models.TranscriptJobNotification) error
}

// MeetingEventSender publishes meeting lifecycle changes.
type MeetingEventSender interface {
	SendMeetingUpdated(ctx context.Context, message models.MeetingUpdatedMessage) error
}

// MessageBuilder is the main interface that composes all messaging capabilities.
type MessageBuilder interface {
	TranscriptJobNotifier
	MeetingEventSender
}
