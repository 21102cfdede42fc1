// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
)

// TranscriptDispatcher runs the transcript jobs that are due.
type TranscriptDispatcher interface {
	Dispatch(ctx context.Context) (service.DispatchResult, error)
	ServiceReady() bool
}

// TranscriptJobHandler handles the transcript job wake-up messages.
type TranscriptJobHandler struct {
	queue TranscriptDispatcher
	now   func() time.Time
}

var _ domain.MessageHandler = (*TranscriptJobHandler)(nil)

func NewTranscriptJobHandler(queue TranscriptDispatcher) *TranscriptJobHandler {
	return &TranscriptJobHandler{
		queue: queue,
		now:   time.Now,
	}
}

func (h *TranscriptJobHandler) HandlerReady() bool {
	return h.queue != nil && h.queue.ServiceReady()
}

// HandleMessage implements domain.MessageHandler interface
func (h *TranscriptJobHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))
	slog.DebugContext(ctx, "handling NATS message")

	handlers := map[string]func(ctx context.Context, msg domain.Message) ([]byte, error){
		models.TranscriptJobEnqueuedSubject: h.HandleTranscriptJobEnqueued,
	}

	handler, ok := handlers[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown subject")
		h.respond(ctx, msg, nil)
		return
	}

	response, err := handler(ctx, msg)
	if err != nil {
		slog.ErrorContext(ctx, "error handling message", logging.ErrKey, err)
		h.respond(ctx, msg, nil)
		return
	}
	h.respond(ctx, msg, response)
}

func (h *TranscriptJobHandler) respond(ctx context.Context, msg domain.Message, response []byte) {
	if !msg.HasReply() {
		return
	}
	if err := msg.Respond(response); err != nil {
		slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
	}
}

// HandleTranscriptJobEnqueued runs a dispatch pass when the announced job is due.
// Jobs scheduled for later are left to the periodic dispatch.
func (h *TranscriptJobHandler) HandleTranscriptJobEnqueued(ctx context.Context, msg domain.Message) ([]byte, error) {
	if !h.HandlerReady() {
		return nil, domain.NewUnavailableError("transcript queue is not ready", domain.ErrServiceUnavailable)
	}

	notification, err := messaging.DecodeTranscriptJobNotification(msg.Data())
	if err != nil {
		return nil, err
	}
	ctx = logging.AppendCtx(ctx, slog.String("job_id", notification.JobID))
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", notification.MeetingID))

	if notification.NextRunAt.After(h.now()) {
		slog.DebugContext(ctx, "transcript job not due yet", "next_run_at", notification.NextRunAt)
		return nil, nil
	}

	result, err := h.queue.Dispatch(ctx)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "dispatched transcript jobs",
		"claimed", result.Claimed,
		"succeeded", result.Succeeded,
		"rescheduled", result.Rescheduled,
		"failed", result.Failed,
	)
	return json.Marshal(result)
}
