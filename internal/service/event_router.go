// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// PlatformHandler turns the webhooks of one platform into canonical events and runs them.
type PlatformHandler interface {
	Platform() models.Platform
	// Normalize parses an authenticated webhook body. An empty result means the
	// notification is acknowledged but not processed.
	Normalize(ctx context.Context, body []byte) ([]*models.WebhookEvent, error)
	// Handle applies the event: meeting upsert and transcript retrieval.
	Handle(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error)
}

// EventRouter is the single entry point of canonical webhook events. It deduplicates
// deliveries, keeps the raw event audit trail and hands handler failures to the retry manager.
type EventRouter struct {
	Guard              *IdempotencyGuard
	RawEventRepository domain.RawEventRepository
	RetryManager       *RetryManager

	handlers map[models.Platform]PlatformHandler
	mu       sync.RWMutex
	validate *validator.Validate
	now      func() time.Time
}

// NewEventRouter creates a router dispatching to handlers by platform. The router
// registers itself as the replayer of the retry manager.
func NewEventRouter(guard *IdempotencyGuard, rawEventRepository domain.RawEventRepository, retryManager *RetryManager, handlers ...PlatformHandler) *EventRouter {
	r := &EventRouter{
		Guard:              guard,
		RawEventRepository: rawEventRepository,
		RetryManager:       retryManager,
		handlers:           make(map[models.Platform]PlatformHandler, len(handlers)),
		validate:           newPayloadValidator(),
		now:                time.Now,
	}
	for _, h := range handlers {
		r.RegisterHandler(h)
	}
	if retryManager != nil {
		retryManager.SetReplayer(r)
	}
	return r
}

// RegisterHandler sets the handler of its platform.
func (r *EventRouter) RegisterHandler(handler PlatformHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Platform()] = handler
}

// Handler returns the handler registered for platform.
func (r *EventRouter) Handler(platform models.Platform) (PlatformHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[platform]
	if !ok {
		return nil, domain.NewNotFoundError("no handler registered for platform " + string(platform))
	}
	return handler, nil
}

// ServiceReady checks if the router is ready for use.
func (r *EventRouter) ServiceReady() bool {
	return r.Guard != nil && r.Guard.ServiceReady() && r.RawEventRepository != nil && r.RetryManager != nil
}

// Route processes one canonical event and reports what happened to the meeting. Handler
// errors do not surface as errors: the event is recorded for retry and the outcome is
// failed. An error is returned only when the failure could not be recorded, in which case
// the platform should redeliver.
func (r *EventRouter) Route(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	if err := r.validate.StructCtx(ctx, event); err != nil {
		return models.OutcomeFailed, domain.NewValidationError("invalid webhook event", err)
	}

	handler, err := r.Handler(event.Platform)
	if err != nil {
		return models.OutcomeFailed, err
	}

	namespace := string(event.Platform)
	ctx = logging.AppendCtx(ctx, slog.String("platform", namespace))
	ctx = logging.AppendCtx(ctx, slog.String("event_type", event.EventType))
	ctx = logging.AppendCtx(ctx, slog.String("external_event_id", event.ExternalEventID))

	acquired, err := r.Guard.Acquire(ctx, event.LockKey(), namespace, map[string]string{
		"event_type":          event.EventType,
		"platform_meeting_id": event.PlatformMeetingID,
	})
	if err != nil {
		// the store is down and the guard fails closed
		return r.recordFailure(ctx, event, "", err)
	}
	if !acquired {
		slog.InfoContext(ctx, "duplicate webhook delivery skipped")
		return models.OutcomeSkipped, nil
	}

	raw, skip, err := r.recordRawEvent(ctx, event)
	if err != nil {
		r.releaseLock(ctx, event)
		return r.recordFailure(ctx, event, "", err)
	}
	if skip {
		if err := r.Guard.MarkProcessed(ctx, event.LockKey(), namespace, nil); err != nil {
			slog.DebugContext(ctx, "failed to re-mark processed event", logging.ErrKey, err)
		}
		slog.InfoContext(ctx, "webhook event already processed, skipped")
		return models.OutcomeSkipped, nil
	}

	r.setRawStatus(ctx, event, models.RawEventStatusProcessing, "")

	outcome, err := handler.Handle(ctx, event)
	if err != nil {
		slog.ErrorContext(ctx, "webhook handler failed", logging.ErrKey, err)
		r.setRawStatus(ctx, event, models.RawEventStatusFailed, err.Error())
		r.releaseLock(ctx, event)
		return r.recordFailure(ctx, event, raw.ID, err)
	}

	r.setRawStatus(ctx, event, models.RawEventStatusProcessed, "")
	if err := r.Guard.MarkProcessed(ctx, event.LockKey(), namespace, map[string]string{"outcome": string(outcome)}); err != nil {
		slog.WarnContext(ctx, "failed to mark event as processed", logging.ErrKey, err)
	}

	slog.InfoContext(ctx, "webhook event routed", "outcome", outcome)
	return outcome, nil
}

// Replay re-runs the handler of an event that previously failed. The raw event record
// keeps its failed status; the idempotency lock is marked processed on success so later
// redeliveries are skipped.
func (r *EventRouter) Replay(ctx context.Context, event *models.WebhookEvent) error {
	handler, err := r.Handler(event.Platform)
	if err != nil {
		return err
	}

	namespace := string(event.Platform)
	ctx = logging.AppendCtx(ctx, slog.String("platform", namespace))
	ctx = logging.AppendCtx(ctx, slog.String("external_event_id", event.ExternalEventID))

	outcome, err := handler.Handle(ctx, event)
	if err != nil {
		return err
	}

	if err := r.Guard.MarkProcessed(ctx, event.LockKey(), namespace, map[string]string{
		"outcome": string(outcome),
		"replay":  "true",
	}); err != nil {
		slog.WarnContext(ctx, "failed to mark replayed event as processed", logging.ErrKey, err)
	}
	slog.InfoContext(ctx, "webhook event replayed", "outcome", outcome)
	return nil
}

// recordRawEvent appends the audit record of event. skip reports an event that was
// already processed by an earlier delivery.
func (r *EventRouter) recordRawEvent(ctx context.Context, event *models.WebhookEvent) (raw *models.RawEvent, skip bool, err error) {
	now := r.now().UTC()
	raw = &models.RawEvent{
		ID:              uuid.New().String(),
		Platform:        event.Platform,
		EventType:       event.EventType,
		ExternalEventID: event.ExternalEventID,
		Payload:         event.Payload,
		Status:          models.RawEventStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = r.RawEventRepository.Insert(ctx, raw)
	if err == nil {
		return raw, false, nil
	}
	if domain.GetErrorType(err) != domain.ErrorTypeConflict {
		return nil, false, err
	}

	existing, err := r.RawEventRepository.Get(ctx, event.Platform, event.ExternalEventID)
	if err != nil {
		return nil, false, err
	}
	return existing, existing.Status == models.RawEventStatusProcessed, nil
}

func (r *EventRouter) setRawStatus(ctx context.Context, event *models.WebhookEvent, status models.RawEventStatus, message string) {
	err := r.RawEventRepository.UpdateStatus(ctx, event.Platform, event.ExternalEventID, status, message)
	if err == nil {
		return
	}
	if domain.GetErrorType(err) == domain.ErrorTypeConflict {
		// redelivery of an event whose record already failed
		slog.DebugContext(ctx, "raw event status not changed", logging.ErrKey, err, "status", status)
		return
	}
	slog.WarnContext(ctx, "failed to update raw event status", logging.ErrKey, err, "status", status)
}

func (r *EventRouter) releaseLock(ctx context.Context, event *models.WebhookEvent) {
	// RemoveLock logs its own failures; an orphaned lock expires with the store TTL
	_ = r.Guard.RemoveLock(ctx, event.LockKey(), string(event.Platform))
}

func (r *EventRouter) recordFailure(ctx context.Context, event *models.WebhookEvent, rawEventID string, cause error) (models.RouteOutcome, error) {
	if _, err := r.RetryManager.RecordFailure(ctx, event, rawEventID, cause); err != nil {
		return models.OutcomeFailed, err
	}
	return models.OutcomeFailed, nil
}
