// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// maxStatusUpdateAttempts bounds the compare-and-set loop of UpdateStatus.
const maxStatusUpdateAttempts = 5

// NatsRawEventRepository is the NATS KV store repository for the raw webhook event audit trail.
type NatsRawEventRepository struct {
	*NatsBaseRepository[models.RawEvent]
	keys *KeyBuilder
}

var _ domain.RawEventRepository = (*NatsRawEventRepository)(nil)

// NewNatsRawEventRepository creates a new NATS KV store repository for raw events.
func NewNatsRawEventRepository(rawEvents INatsKeyValue) *NatsRawEventRepository {
	return &NatsRawEventRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.RawEvent](rawEvents, "raw event"),
		keys:               NewKeyBuilder(KeyPrefixRawEvent),
	}
}

func (s *NatsRawEventRepository) key(platform models.Platform, externalEventID string) string {
	return s.keys.Key(string(platform), externalEventID)
}

// Insert records a new event, failing with a ConflictError when it was already recorded.
func (s *NatsRawEventRepository) Insert(ctx context.Context, event *models.RawEvent) error {
	if event.ExternalEventID == "" {
		return domain.NewValidationError("external event id is required", domain.ErrValidationFailed)
	}
	_, err := s.NatsBaseRepository.Insert(ctx, s.key(event.Platform, event.ExternalEventID), event)
	return err
}

// Get retrieves a raw event by platform and external event id.
func (s *NatsRawEventRepository) Get(ctx context.Context, platform models.Platform, externalEventID string) (*models.RawEvent, error) {
	return s.NatsBaseRepository.Get(ctx, s.key(platform, externalEventID))
}

// UpdateStatus moves the event to status. Terminal records are never changed.
func (s *NatsRawEventRepository) UpdateStatus(ctx context.Context, platform models.Platform, externalEventID string, status models.RawEventStatus, errorMessage string) error {
	key := s.key(platform, externalEventID)

	var err error
	for range maxStatusUpdateAttempts {
		var (
			event    *models.RawEvent
			revision uint64
		)
		event, revision, err = s.GetWithRevision(ctx, key)
		if err != nil {
			return err
		}
		if event.Status.IsTerminal() {
			return domain.NewConflictError("raw event is already " + string(event.Status))
		}

		now := time.Now().UTC()
		event.Status = status
		event.ErrorMessage = errorMessage
		event.UpdatedAt = now
		if status == models.RawEventStatusProcessed {
			event.ProcessedAt = &now
		}

		err = s.NatsBaseRepository.Update(ctx, key, event, revision)
		if err == nil || domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return err
		}
	}
	return err
}
