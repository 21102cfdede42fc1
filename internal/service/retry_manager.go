// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// EventReplayer re-runs the handler of a previously failed event.
type EventReplayer interface {
	Replay(ctx context.Context, event *models.WebhookEvent) error
}

// MeetingFailer marks a meeting failed.
type MeetingFailer interface {
	Fail(ctx context.Context, id string, cause string) (*models.Meeting, error)
}

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Due          int `json:"due"`
	Succeeded    int `json:"succeeded"`
	Rescheduled  int `json:"rescheduled"`
	DeadLettered int `json:"dead_lettered"`
}

// RetryManager records handler failures, replays them on a schedule and moves the ones
// that exhaust their budget to the dead letter queue.
type RetryManager struct {
	FailureRepository    domain.WebhookFailureRepository
	DeadLetterRepository domain.DeadLetterRepository
	AlertNotifier        domain.AlertNotifier
	replayer             EventReplayer
	meetings             MeetingFailer

	ladder      []time.Duration
	maxAttempts int
	batchSize   int
	metrics     PipelineMetrics
	now         func() time.Time
}

// NewRetryManager creates a new RetryManager. The replayer is set separately with
// SetReplayer because the event router itself reports its failures here.
func NewRetryManager(
	failureRepository domain.WebhookFailureRepository,
	deadLetterRepository domain.DeadLetterRepository,
	alertNotifier domain.AlertNotifier,
	config ServiceConfig,
	metrics PipelineMetrics,
) *RetryManager {
	defaults := DefaultServiceConfig()
	ladder := config.RetryLadder
	if len(ladder) == 0 {
		ladder = defaults.RetryLadder
	}
	if config.RetryMaxAttempts <= 0 {
		config.RetryMaxAttempts = defaults.RetryMaxAttempts
	}
	if config.RetryBatchSize <= 0 {
		config.RetryBatchSize = defaults.RetryBatchSize
	}

	return &RetryManager{
		FailureRepository:    failureRepository,
		DeadLetterRepository: deadLetterRepository,
		AlertNotifier:        alertNotifier,
		ladder:               ladder,
		maxAttempts:          config.RetryMaxAttempts,
		batchSize:            config.RetryBatchSize,
		metrics:              metricsOrNoop(metrics),
		now:                  time.Now,
	}
}

// SetReplayer sets the component failed events are replayed through.
func (m *RetryManager) SetReplayer(replayer EventReplayer) {
	m.replayer = replayer
}

// SetMeetingFailer sets where the meetings of dead-lettered events are marked failed.
func (m *RetryManager) SetMeetingFailer(meetings MeetingFailer) {
	m.meetings = meetings
}

// ServiceReady checks if the manager is ready for use.
func (m *RetryManager) ServiceReady() bool {
	return m.FailureRepository != nil && m.DeadLetterRepository != nil && m.replayer != nil
}

// Delay returns the wait before the retry following attempt (1-based). Attempts past the
// end of the ladder reuse its last entry.
func (m *RetryManager) Delay(attempt int) time.Duration {
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(m.ladder) {
		i = len(m.ladder) - 1
	}
	return m.ladder[i]
}

// RecordFailure stores the first failure of event and schedules its first retry.
func (m *RetryManager) RecordFailure(ctx context.Context, event *models.WebhookEvent, rawEventID string, cause error) (*models.WebhookFailure, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, domain.NewInternalError("failed to marshal failed event", err)
	}

	now := m.now().UTC()
	failure := &models.WebhookFailure{
		ID:          uuid.New().String(),
		Platform:    event.Platform,
		EventType:   event.EventType,
		RawEventID:  rawEventID,
		Payload:     payload,
		Error:       cause.Error(),
		Attempts:    1,
		MaxAttempts: m.maxAttempts,
		NextRetryAt: now.Add(m.Delay(1)),
		Status:      models.WebhookFailureStatusPending,
		History:     []models.FailureAttempt{{Attempt: 1, Error: cause.Error(), FailedAt: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.FailureRepository.Create(ctx, failure); err != nil {
		slog.ErrorContext(ctx, "failed to record webhook failure", logging.ErrKey, err,
			"platform", event.Platform,
			"event_type", event.EventType,
			"cause", cause.Error(),
		)
		return nil, err
	}

	slog.WarnContext(ctx, "webhook failure recorded for retry",
		"failure_id", failure.ID,
		"platform", failure.Platform,
		"event_type", failure.EventType,
		"next_retry_at", failure.NextRetryAt,
		"cause", failure.Error,
	)
	m.metrics.ObserveFailureRecorded(event.Platform)
	return failure, nil
}

// GetDueForRetry returns up to limit pending failures whose retry time has come, oldest first.
func (m *RetryManager) GetDueForRetry(ctx context.Context, limit int) ([]*models.WebhookFailure, error) {
	failures, err := m.FailureRepository.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	due := make([]*models.WebhookFailure, 0, len(failures))
	for _, f := range failures {
		if f.Status == models.WebhookFailureStatusPending && !f.NextRetryAt.After(now) {
			due = append(due, f)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextRetryAt.Equal(due[j].NextRetryAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].NextRetryAt.Before(due[j].NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Sweep replays every due failure once. Claims are CAS updates, so concurrent sweeps on
// several replicas never replay the same failure twice.
func (m *RetryManager) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if m.replayer == nil {
		return result, domain.NewUnavailableError("retry manager has no replayer", domain.ErrServiceUnavailable)
	}

	due, err := m.GetDueForRetry(ctx, m.batchSize)
	if err != nil {
		return result, err
	}
	result.Due = len(due)

	for _, candidate := range due {
		failure := m.claim(ctx, candidate.ID)
		if failure == nil {
			continue
		}

		fctx := logging.AppendCtx(ctx, slog.String("failure_id", failure.ID))
		err := m.replay(fctx, failure)
		if err == nil {
			m.complete(fctx, failure.ID)
			result.Succeeded++
			continue
		}

		deadLettered, handleErr := m.HandleRetryFailure(fctx, failure.ID, err)
		switch {
		case handleErr != nil:
			slog.ErrorContext(fctx, "failed to handle retry failure", logging.ErrKey, handleErr)
		case deadLettered:
			result.DeadLettered++
		default:
			result.Rescheduled++
		}
	}

	if stats, err := m.Stats(ctx); err == nil {
		m.metrics.SetFailureStats(stats)
	}
	return result, nil
}

// HandleRetryFailure counts a failed retry. The failure is rescheduled on the ladder, or
// dead-lettered once its attempts reach the maximum. Failures that already completed or
// were dead-lettered are left alone.
func (m *RetryManager) HandleRetryFailure(ctx context.Context, failureID string, cause error) (deadLettered bool, err error) {
	var exhausted bool
	for range maxCASAttempts {
		var (
			failure  *models.WebhookFailure
			revision uint64
		)
		failure, revision, err = m.FailureRepository.GetWithRevision(ctx, failureID)
		if err != nil {
			return false, err
		}
		if failure.Status == models.WebhookFailureStatusCompleted || failure.Status == models.WebhookFailureStatusDeadLetter {
			return failure.Status == models.WebhookFailureStatusDeadLetter, nil
		}

		now := m.now().UTC()
		failure.Attempts++
		failure.Error = cause.Error()
		failure.History = append(failure.History, models.FailureAttempt{
			Attempt:  failure.Attempts,
			Error:    cause.Error(),
			FailedAt: now,
		})
		failure.UpdatedAt = now

		exhausted = failure.Attempts >= failure.MaxAttempts
		if !exhausted {
			failure.Status = models.WebhookFailureStatusPending
			failure.NextRetryAt = now.Add(m.Delay(failure.Attempts))
		}

		err = m.FailureRepository.Update(ctx, failure, revision)
		if err == nil {
			if !exhausted {
				slog.InfoContext(ctx, "webhook retry failed, rescheduled", logging.ErrKey, cause,
					"attempts", failure.Attempts,
					"next_retry_at", failure.NextRetryAt,
				)
			}
			break
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return false, err
		}
	}
	if err != nil {
		return false, err
	}
	if !exhausted {
		return false, nil
	}

	if _, err := m.MoveToDeadLetter(ctx, failureID); err != nil {
		return false, err
	}
	return true, nil
}

// MoveToDeadLetter escalates a failure. The dead letter entry is created at most once
// per failure and its alert is claimed with a CAS update before it is sent, so repeated
// or concurrent calls produce one entry and at most one alert.
func (m *RetryManager) MoveToDeadLetter(ctx context.Context, failureID string) (*models.DeadLetterEntry, error) {
	failure, _, err := m.FailureRepository.GetWithRevision(ctx, failureID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	entry := &models.DeadLetterEntry{
		ID:             failure.ID,
		FailureID:      failure.ID,
		Platform:       failure.Platform,
		EventType:      failure.EventType,
		Payload:        failure.Payload,
		Error:          failure.Error,
		TotalAttempts:  failure.Attempts,
		FailureHistory: failure.History,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	switch err := m.DeadLetterRepository.Create(ctx, entry); {
	case err == nil:
		slog.ErrorContext(ctx, "webhook moved to the dead letter queue",
			"failure_id", failure.ID,
			"platform", failure.Platform,
			"event_type", failure.EventType,
			"total_attempts", failure.Attempts,
			"cause", failure.Error,
			logging.PriorityCritical(),
		)
		m.metrics.ObserveDeadLetter(failure.Platform)
		m.failMeeting(ctx, failure)
	case domain.GetErrorType(err) == domain.ErrorTypeConflict:
		slog.DebugContext(ctx, "dead letter entry already exists", "failure_id", failure.ID)
	default:
		return nil, err
	}

	m.updateFailure(ctx, failure.ID, func(f *models.WebhookFailure) bool {
		if f.Status == models.WebhookFailureStatusDeadLetter {
			return false
		}
		f.Status = models.WebhookFailureStatusDeadLetter
		return true
	})

	return m.sendAlertOnce(ctx, failure.ID)
}

// failMeeting marks the meeting a dead-lettered event belongs to as failed.
func (m *RetryManager) failMeeting(ctx context.Context, failure *models.WebhookFailure) {
	if m.meetings == nil {
		return
	}
	var event models.WebhookEvent
	if err := json.Unmarshal(failure.Payload, &event); err != nil || event.PlatformMeetingID == "" {
		return
	}
	meetingID := models.MeetingIDFor(event.Platform, event.PlatformMeetingID)
	if _, err := m.meetings.Fail(ctx, meetingID, failure.Error); err != nil && domain.GetErrorType(err) != domain.ErrorTypeNotFound {
		slog.WarnContext(ctx, "failed to mark meeting of dead-lettered event as failed", logging.ErrKey, err,
			"failure_id", failure.ID,
			"meeting_id", meetingID,
		)
	}
}

// sendAlertOnce claims the alert of an entry and sends it when the claim succeeds.
func (m *RetryManager) sendAlertOnce(ctx context.Context, id string) (*models.DeadLetterEntry, error) {
	var err error
	for range maxCASAttempts {
		var (
			entry    *models.DeadLetterEntry
			revision uint64
		)
		entry, revision, err = m.DeadLetterRepository.GetWithRevision(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry.AlertSent {
			return entry, nil
		}

		now := m.now().UTC()
		entry.AlertSent = true
		entry.AlertSentAt = &now
		entry.UpdatedAt = now
		err = m.DeadLetterRepository.Update(ctx, entry, revision)
		if err == nil {
			m.alert(ctx, entry)
			return entry, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, err
		}
	}
	return nil, err
}

func (m *RetryManager) alert(ctx context.Context, entry *models.DeadLetterEntry) {
	if m.AlertNotifier == nil {
		return
	}
	err := m.AlertNotifier.SendDeadLetterAlert(ctx, models.DeadLetterAlert{
		ID:            entry.ID,
		Platform:      entry.Platform,
		EventType:     entry.EventType,
		TotalAttempts: entry.TotalAttempts,
		Error:         entry.Error,
	})
	m.metrics.ObserveAlert(err)
	if err != nil {
		slog.ErrorContext(ctx, "failed to send dead letter alert", logging.ErrKey, err,
			"dead_letter_id", entry.ID,
			logging.PriorityCritical(),
		)
	}
}

// RetryDeadLetter schedules the event of a dead letter entry for an immediate retry with
// a fresh budget, then resolves the entry. The retry failure has an ID derived from the
// entry, so a call that failed half way can be repeated without scheduling twice.
// Resolved entries cannot be retried again.
func (m *RetryManager) RetryDeadLetter(ctx context.Context, id, note string) (*models.WebhookFailure, error) {
	entry, err := m.DeadLetterRepository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Resolved {
		return nil, domain.NewConflictError("dead letter entry is already resolved")
	}

	now := m.now().UTC()
	failure := &models.WebhookFailure{
		ID:          replayFailureID(entry.ID),
		Platform:    entry.Platform,
		EventType:   entry.EventType,
		Payload:     entry.Payload,
		Error:       entry.Error,
		Attempts:    0,
		MaxAttempts: m.maxAttempts,
		NextRetryAt: now,
		Status:      models.WebhookFailureStatusPending,
		History:     []models.FailureAttempt{},
		ReplayOf:    entry.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch err := m.FailureRepository.Create(ctx, failure); {
	case err == nil:
	case domain.GetErrorType(err) == domain.ErrorTypeConflict:
		// scheduled by an earlier call that did not get to resolve the entry
		if failure, _, err = m.FailureRepository.GetWithRevision(ctx, failure.ID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	for range maxCASAttempts {
		var revision uint64
		entry, revision, err = m.DeadLetterRepository.GetWithRevision(ctx, id)
		if err != nil {
			return nil, err
		}
		if entry.Resolved {
			return nil, domain.NewConflictError("dead letter entry is already resolved")
		}
		entry.Resolved = true
		entry.ResolvedAt = &now
		entry.ResolutionNote = note
		entry.UpdatedAt = now
		err = m.DeadLetterRepository.Update(ctx, entry, revision)
		if err == nil || domain.GetErrorType(err) != domain.ErrorTypeConflict {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "dead letter entry scheduled for retry",
		"dead_letter_id", entry.ID,
		"failure_id", failure.ID,
		"note", note,
	)
	return failure, nil
}

// replayFailureID derives the ID of the failure that retries a dead letter entry.
func replayFailureID(entryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("dead-letter-retry:"+entryID)).String()
}

// GetDeadLetter returns one dead letter entry.
func (m *RetryManager) GetDeadLetter(ctx context.Context, id string) (*models.DeadLetterEntry, error) {
	return m.DeadLetterRepository.Get(ctx, id)
}

// ListDeadLetters returns dead letter entries, newest first.
func (m *RetryManager) ListDeadLetters(ctx context.Context, includeResolved bool) ([]*models.DeadLetterEntry, error) {
	entries, err := m.DeadLetterRepository.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.DeadLetterEntry, 0, len(entries))
	for _, e := range entries {
		if e.Resolved && !includeResolved {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Stats aggregates failure counters per platform.
func (m *RetryManager) Stats(ctx context.Context) ([]models.PlatformFailureStats, error) {
	failures, err := m.FailureRepository.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byPlatform := make(map[models.Platform]*models.PlatformFailureStats, len(models.Platforms))
	stats := make([]models.PlatformFailureStats, len(models.Platforms))
	for i, p := range models.Platforms {
		stats[i].Platform = p
		byPlatform[p] = &stats[i]
	}

	for _, f := range failures {
		s, ok := byPlatform[f.Platform]
		if !ok {
			continue
		}
		s.Total++
		switch f.Status {
		case models.WebhookFailureStatusPending:
			s.Pending++
			s.Failed++
		case models.WebhookFailureStatusRetrying:
			s.Failed++
		case models.WebhookFailureStatusDeadLetter:
			s.DeadLettered++
		case models.WebhookFailureStatusCompleted:
			s.Completed++
		}
	}
	return stats, nil
}

// claim moves a due failure to retrying. nil means it is no longer due or another sweep won.
func (m *RetryManager) claim(ctx context.Context, id string) *models.WebhookFailure {
	failure, revision, err := m.FailureRepository.GetWithRevision(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to load webhook failure", logging.ErrKey, err, "failure_id", id)
		return nil
	}
	if failure.Status != models.WebhookFailureStatusPending || failure.NextRetryAt.After(m.now()) {
		return nil
	}

	failure.Status = models.WebhookFailureStatusRetrying
	failure.UpdatedAt = m.now().UTC()
	if err := m.FailureRepository.Update(ctx, failure, revision); err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			slog.WarnContext(ctx, "failed to claim webhook failure", logging.ErrKey, err, "failure_id", id)
		}
		return nil
	}
	return failure
}

func (m *RetryManager) replay(ctx context.Context, failure *models.WebhookFailure) error {
	var event models.WebhookEvent
	if err := json.Unmarshal(failure.Payload, &event); err != nil {
		return domain.NewValidationError("stored event payload is malformed", domain.ErrUnmarshal, err)
	}
	return m.replayer.Replay(ctx, &event)
}

func (m *RetryManager) complete(ctx context.Context, id string) {
	m.updateFailure(ctx, id, func(f *models.WebhookFailure) bool {
		f.Status = models.WebhookFailureStatusCompleted
		return true
	})
	slog.InfoContext(ctx, "webhook retry succeeded")
}

func (m *RetryManager) updateFailure(ctx context.Context, id string, mutate func(*models.WebhookFailure) bool) {
	var err error
	for range maxCASAttempts {
		var (
			failure  *models.WebhookFailure
			revision uint64
		)
		failure, revision, err = m.FailureRepository.GetWithRevision(ctx, id)
		if err != nil {
			break
		}
		if !mutate(failure) {
			return
		}
		failure.UpdatedAt = m.now().UTC()
		err = m.FailureRepository.Update(ctx, failure, revision)
		if err == nil || domain.GetErrorType(err) != domain.ErrorTypeConflict {
			break
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to update webhook failure", logging.ErrKey, err, "failure_id", id)
	}
}
