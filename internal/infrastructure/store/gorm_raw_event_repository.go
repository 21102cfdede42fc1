// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

// RawEventRecord is the relational row of a raw webhook event.
type RawEventRecord struct {
	ID              string     `gorm:"primaryKey;type:varchar(36)"`
	Platform        string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_raw_events_platform_external_id"`
	EventType       string     `gorm:"type:varchar(128);not null"`
	ExternalEventID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_raw_events_platform_external_id"`
	Payload         []byte     `gorm:"type:json"`
	Status          string     `gorm:"type:varchar(16);not null;index"`
	ErrorMessage    string     `gorm:"type:text"`
	ProcessedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for RawEventRecord
func (RawEventRecord) TableName() string {
	return "raw_events"
}

func newRawEventRecord(event *models.RawEvent) *RawEventRecord {
	return &RawEventRecord{
		ID:              event.ID,
		Platform:        string(event.Platform),
		EventType:       event.EventType,
		ExternalEventID: event.ExternalEventID,
		Payload:         event.Payload,
		Status:          string(event.Status),
		ErrorMessage:    event.ErrorMessage,
		ProcessedAt:     event.ProcessedAt,
		CreatedAt:       event.CreatedAt,
		UpdatedAt:       event.UpdatedAt,
	}
}

func (r *RawEventRecord) toModel() *models.RawEvent {
	return &models.RawEvent{
		ID:              r.ID,
		Platform:        models.Platform(r.Platform),
		EventType:       r.EventType,
		ExternalEventID: r.ExternalEventID,
		Payload:         r.Payload,
		Status:          models.RawEventStatus(r.Status),
		ErrorMessage:    r.ErrorMessage,
		ProcessedAt:     r.ProcessedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// GormRawEventRepository keeps the raw event audit trail in a MySQL table.
// The unique index on (platform, external_event_id) makes Insert a create-if-absent.
type GormRawEventRepository struct {
	db *gorm.DB
}

var _ domain.RawEventRepository = (*GormRawEventRepository)(nil)

// NewGormRawEventRepository creates a raw event repository over db.
func NewGormRawEventRepository(db *gorm.DB) *GormRawEventRepository {
	return &GormRawEventRepository{db: db}
}

// Migrate creates or updates the raw_events table.
func (r *GormRawEventRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&RawEventRecord{}); err != nil {
		return fmt.Errorf("failed to migrate raw_events: %w", err)
	}
	return nil
}

// Insert records a new event, failing with a ConflictError when it was already recorded.
func (r *GormRawEventRepository) Insert(ctx context.Context, event *models.RawEvent) error {
	if event.ExternalEventID == "" {
		return domain.NewValidationError("external event id is required", domain.ErrValidationFailed)
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(newRawEventRecord(event))
	if result.Error != nil {
		return domain.NewInternalError("failed to insert raw event", fmt.Errorf("database error: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("raw event already exists")
	}
	return nil
}

// Get retrieves a raw event by platform and external event id.
func (r *GormRawEventRepository) Get(ctx context.Context, platform models.Platform, externalEventID string) (*models.RawEvent, error) {
	var record RawEventRecord
	err := r.db.WithContext(ctx).
		Where("platform = ? AND external_event_id = ?", string(platform), externalEventID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("raw event not found")
		}
		return nil, domain.NewInternalError("failed to get raw event", fmt.Errorf("database error: %w", err))
	}
	return record.toModel(), nil
}

// UpdateStatus moves a non-terminal event to status in a single conditional update.
func (r *GormRawEventRepository) UpdateStatus(ctx context.Context, platform models.Platform, externalEventID string, status models.RawEventStatus, errorMessage string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":        string(status),
		"error_message": errorMessage,
		"updated_at":    now,
	}
	if status == models.RawEventStatusProcessed {
		updates["processed_at"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&RawEventRecord{}).
		Where("platform = ? AND external_event_id = ? AND status IN ?", string(platform), externalEventID,
			[]string{string(models.RawEventStatusPending), string(models.RawEventStatusProcessing)}).
		Updates(updates)
	if result.Error != nil {
		return domain.NewInternalError("failed to update raw event", fmt.Errorf("database error: %w", result.Error))
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: either the row is missing or it is already terminal.
	existing, err := r.Get(ctx, platform, externalEventID)
	if err != nil {
		return err
	}
	return domain.NewConflictError("raw event is already " + string(existing.Status))
}
