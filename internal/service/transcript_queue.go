// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/concurrent"
)

// Transcript job results reported to metrics
const (
	jobResultSucceeded   = "succeeded"
	jobResultRescheduled = "rescheduled"
	jobResultFailed      = "failed"
)

// DispatchResult summarizes one dispatcher pass.
type DispatchResult struct {
	Claimed     int `json:"claimed"`
	Succeeded   int `json:"succeeded"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

// TranscriptQueue runs transcript downloads in the background. Jobs live in the job
// repository so any replica can pick them up; a NATS notification wakes the dispatcher
// and a periodic dispatch catches everything else.
type TranscriptQueue struct {
	JobRepository     domain.TranscriptJobRepository
	Notifier          domain.TranscriptJobNotifier
	MeetingService    *MeetingService
	TranscriptService *TranscriptService
	// DraftGenerator is optional; meetings complete without a draft when it is nil.
	DraftGenerator domain.DraftGenerator

	pool       *concurrent.WorkerPool
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	staleAfter time.Duration
	batchSize  int
	metrics    PipelineMetrics
	now        func() time.Time

	dispatching sync.Mutex
}

// NewTranscriptQueue creates a new TranscriptQueue.
func NewTranscriptQueue(
	jobRepository domain.TranscriptJobRepository,
	notifier domain.TranscriptJobNotifier,
	meetingService *MeetingService,
	transcriptService *TranscriptService,
	draftGenerator domain.DraftGenerator,
	config ServiceConfig,
	metrics PipelineMetrics,
) *TranscriptQueue {
	defaults := DefaultServiceConfig()
	if config.TranscriptJobMaxRetries < 0 {
		config.TranscriptJobMaxRetries = defaults.TranscriptJobMaxRetries
	}
	if config.TranscriptJobBaseDelay <= 0 {
		config.TranscriptJobBaseDelay = defaults.TranscriptJobBaseDelay
	}
	if config.TranscriptJobMaxDelay <= 0 {
		config.TranscriptJobMaxDelay = defaults.TranscriptJobMaxDelay
	}
	if config.TranscriptJobStaleAfter <= 0 {
		config.TranscriptJobStaleAfter = defaults.TranscriptJobStaleAfter
	}
	if config.DispatchBatchSize <= 0 {
		config.DispatchBatchSize = defaults.DispatchBatchSize
	}

	return &TranscriptQueue{
		JobRepository:     jobRepository,
		Notifier:          notifier,
		MeetingService:    meetingService,
		TranscriptService: transcriptService,
		DraftGenerator:    draftGenerator,
		pool:              concurrent.NewWorkerPool(config.TranscriptWorkers),
		maxRetries:        config.TranscriptJobMaxRetries,
		baseDelay:         config.TranscriptJobBaseDelay,
		maxDelay:          config.TranscriptJobMaxDelay,
		staleAfter:        config.TranscriptJobStaleAfter,
		batchSize:         config.DispatchBatchSize,
		metrics:           metricsOrNoop(metrics),
		now:               time.Now,
	}
}

// ServiceReady checks if the queue is ready for use.
func (q *TranscriptQueue) ServiceReady() bool {
	return q.JobRepository != nil && q.MeetingService != nil && q.TranscriptService != nil
}

// Backoff returns the delay before retry n (n >= 1): base * 2^(n-1), capped at the max delay.
func (q *TranscriptQueue) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	delay := q.baseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= q.maxDelay {
			return q.maxDelay
		}
	}
	return min(delay, q.maxDelay)
}

// Enqueue schedules a transcript download for meetingID. Jobs are keyed by meeting, so
// enqueueing a meeting that already has a job is a no-op reported as false.
func (q *TranscriptQueue) Enqueue(ctx context.Context, meetingID string, platform models.Platform, source models.TranscriptSource) (bool, error) {
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", meetingID))

	now := q.now().UTC()
	job := &models.TranscriptJob{
		ID:          meetingID,
		MeetingID:   meetingID,
		Platform:    platform,
		Source:      source,
		Status:      models.TranscriptJobStatusQueued,
		MaxAttempts: q.maxRetries + 1,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.JobRepository.Create(ctx, job); err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeConflict {
			slog.DebugContext(ctx, "transcript job already exists")
			return false, nil
		}
		return false, err
	}

	slog.InfoContext(ctx, "transcript job enqueued", "platform", platform, "source_kind", source.Kind)
	if _, err := q.MeetingService.Advance(ctx, meetingID, models.MeetingStatusPending, models.ProcessingStepQueued, 10); err != nil {
		slog.WarnContext(ctx, "failed to update meeting step", logging.ErrKey, err)
	}
	q.notify(ctx, job)
	return true, nil
}

// Requeue puts the job of meetingID back in the queue with a fresh budget, creating it
// when the meeting never had one. A nil source keeps the source of the existing job.
func (q *TranscriptQueue) Requeue(ctx context.Context, meetingID string, platform models.Platform, source *models.TranscriptSource) (*models.TranscriptJob, error) {
	var err error
	for range maxCASAttempts {
		var (
			job      *models.TranscriptJob
			revision uint64
		)
		job, revision, err = q.JobRepository.GetWithRevision(ctx, meetingID)
		if err != nil {
			if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
				return nil, err
			}
			if source == nil {
				return nil, domain.NewValidationError("meeting has no transcript source to reprocess")
			}
			created, enqueueErr := q.Enqueue(ctx, meetingID, platform, *source)
			if enqueueErr != nil {
				return nil, enqueueErr
			}
			if created {
				job, _, err = q.JobRepository.GetWithRevision(ctx, meetingID)
				return job, err
			}
			continue
		}
		if job.Status == models.TranscriptJobStatusRunning {
			return nil, domain.NewConflictError("transcript job is running")
		}

		now := q.now().UTC()
		if source != nil {
			job.Source = *source
		}
		job.Status = models.TranscriptJobStatusQueued
		job.Attempts = 0
		job.MaxAttempts = q.maxRetries + 1
		job.NextRunAt = now
		job.LastError = ""
		job.UpdatedAt = now

		err = q.JobRepository.Update(ctx, job, revision)
		if err == nil {
			q.notify(ctx, job)
			return job, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, err
		}
	}
	return nil, err
}

// ProcessInline runs the transcript pipeline for meeting within the caller's request.
// Transient failures fall back to the background queue and permanent fetch failures fail
// the meeting; neither is reported as an error, so the webhook is not retried for them.
func (q *TranscriptQueue) ProcessInline(ctx context.Context, meeting *models.Meeting, source models.TranscriptSource) error {
	transcript, stored, err := q.TranscriptService.FetchAndStore(ctx, meeting, source)
	switch {
	case err == nil:
	case domain.IsRetryable(err):
		slog.InfoContext(ctx, "inline transcript fetch not possible yet, falling back to the queue",
			logging.ErrKey, err,
			"meeting_id", meeting.ID,
		)
		_, err = q.Enqueue(ctx, meeting.ID, meeting.Platform, source)
		return err
	case isPermanentFetchError(err):
		slog.ErrorContext(ctx, "inline transcript fetch failed permanently", logging.ErrKey, err, "meeting_id", meeting.ID)
		q.failMeeting(ctx, meeting.ID, err)
		q.metrics.ObserveTranscriptJob(meeting.Platform, jobResultFailed)
		return nil
	default:
		return err
	}

	if !stored {
		slog.DebugContext(ctx, "transcript already handed off, nothing to do", "meeting_id", meeting.ID)
		return nil
	}
	q.finish(ctx, meeting, transcript)
	return nil
}

// isPermanentFetchError reports errors the transcript source answered with, as opposed to
// failures of this service's own stores, which stay eligible for a webhook retry.
func isPermanentFetchError(err error) bool {
	switch domain.GetErrorType(err) {
	case domain.ErrorTypeValidation, domain.ErrorTypeUnauthorized, domain.ErrorTypeForbidden:
		return true
	default:
		return false
	}
}

// Dispatch claims due jobs and runs them on the worker pool. Overlapping calls in the
// same process return immediately; claims are CAS updates so replicas never run the same job.
func (q *TranscriptQueue) Dispatch(ctx context.Context) (DispatchResult, error) {
	var result DispatchResult
	if !q.dispatching.TryLock() {
		return result, nil
	}
	defer q.dispatching.Unlock()

	jobs, err := q.JobRepository.ListAll(ctx)
	if err != nil {
		return result, err
	}

	now := q.now()
	due := make([]*models.TranscriptJob, 0, len(jobs))
	for _, job := range jobs {
		if job.IsDue(now) || q.isStale(job, now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if len(due) > q.batchSize {
		due = due[:q.batchSize]
	}

	claimed := make([]*models.TranscriptJob, 0, len(due))
	for _, job := range due {
		c, exhausted := q.claim(ctx, job.ID)
		switch {
		case c == nil:
		case exhausted:
			result.Claimed++
			result.Failed++
			q.fail(ctx, c, domain.NewInternalError(
				fmt.Sprintf("transcript job worker stopped during its last attempt (%d of %d)", c.Attempts, c.MaxAttempts)))
		default:
			claimed = append(claimed, c)
		}
	}
	result.Claimed += len(claimed)
	if len(claimed) == 0 {
		return result, nil
	}

	outcomes := make([]string, len(claimed))
	errs := concurrent.ForEach(ctx, q.pool, indexes(len(claimed)), func(ctx context.Context, i int) error {
		outcomes[i] = q.run(ctx, claimed[i])
		return nil
	})
	for _, err := range errs {
		slog.WarnContext(ctx, "transcript job not started", logging.ErrKey, err)
	}

	for _, outcome := range outcomes {
		switch outcome {
		case jobResultSucceeded:
			result.Succeeded++
		case jobResultRescheduled:
			result.Rescheduled++
		case jobResultFailed:
			result.Failed++
		}
	}
	slog.DebugContext(ctx, "transcript dispatch finished",
		"claimed", result.Claimed,
		"succeeded", result.Succeeded,
		"rescheduled", result.Rescheduled,
		"failed", result.Failed,
	)
	return result, nil
}

func (q *TranscriptQueue) isStale(job *models.TranscriptJob, now time.Time) bool {
	return job.Status == models.TranscriptJobStatusRunning && job.UpdatedAt.Add(q.staleAfter).Before(now)
}

// claim moves a due job to running and counts the attempt. nil means another worker won.
// A stale job that already used its last attempt is claimed without counting and reported
// as exhausted, so the caller fails it instead of running it again.
func (q *TranscriptQueue) claim(ctx context.Context, id string) (job *models.TranscriptJob, exhausted bool) {
	job, revision, err := q.JobRepository.GetWithRevision(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to load transcript job", logging.ErrKey, err, "job_id", id)
		return nil, false
	}
	now := q.now()
	stale := q.isStale(job, now)
	if !job.IsDue(now) && !stale {
		return nil, false
	}

	exhausted = stale && job.Attempts >= job.MaxAttempts
	job.Status = models.TranscriptJobStatusRunning
	if !exhausted {
		job.Attempts++
	}
	job.UpdatedAt = now.UTC()
	if err := q.JobRepository.Update(ctx, job, revision); err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			slog.WarnContext(ctx, "failed to claim transcript job", logging.ErrKey, err, "job_id", id)
		}
		return nil, false
	}
	return job, exhausted
}

// run executes one claimed job and records its outcome.
func (q *TranscriptQueue) run(ctx context.Context, job *models.TranscriptJob) string {
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", job.MeetingID))
	ctx = logging.AppendCtx(ctx, slog.Int("attempt", job.Attempts))

	meeting, err := q.MeetingService.GetMeeting(ctx, job.MeetingID)
	if err != nil {
		if domain.IsRetryable(err) {
			return q.reschedule(ctx, job, err)
		}
		return q.fail(ctx, job, err)
	}

	if _, err := q.MeetingService.Advance(ctx, meeting.ID, models.MeetingStatusProcessing, models.ProcessingStepDownloading, 20); err != nil {
		slog.WarnContext(ctx, "failed to advance meeting", logging.ErrKey, err)
	}

	transcript, stored, err := q.TranscriptService.FetchAndStore(ctx, meeting, job.Source)
	if err != nil {
		if domain.IsRetryable(err) && job.Attempts < job.MaxAttempts {
			return q.reschedule(ctx, job, err)
		}
		return q.fail(ctx, job, err)
	}

	if stored {
		q.finish(ctx, meeting, transcript)
	}
	q.complete(ctx, job)
	return jobResultSucceeded
}

// finish hands the stored transcript to the draft collaborator and completes the meeting.
// Draft failures are logged only, the transcript stays available.
func (q *TranscriptQueue) finish(ctx context.Context, meeting *models.Meeting, transcript *models.Transcript) {
	if q.DraftGenerator != nil {
		if _, err := q.MeetingService.Advance(ctx, meeting.ID, models.MeetingStatusReady, models.ProcessingStepDrafting, 90); err != nil {
			slog.WarnContext(ctx, "failed to advance meeting", logging.ErrKey, err)
		}

		date := ""
		if meeting.StartTime != nil {
			date = meeting.StartTime.UTC().Format(time.DateOnly)
		}
		result, err := q.DraftGenerator.GenerateDraft(ctx, models.DraftRequest{
			MeetingID:    meeting.ID,
			TranscriptID: transcript.ID,
			Context: models.DraftContext{
				Topic:          meeting.Topic,
				Date:           date,
				HostName:       meeting.HostName,
				TranscriptText: transcript.Content,
			},
		})
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "draft generation failed", logging.ErrKey, err, "meeting_id", meeting.ID)
		case !result.Success:
			slog.WarnContext(ctx, "draft generation was rejected", "meeting_id", meeting.ID, "reason", result.Error)
		default:
			slog.InfoContext(ctx, "draft generated", "meeting_id", meeting.ID, "draft_id", result.DraftID)
		}
	}

	if _, err := q.MeetingService.Advance(ctx, meeting.ID, models.MeetingStatusCompleted, models.ProcessingStepDone, 100); err != nil {
		slog.WarnContext(ctx, "failed to complete meeting", logging.ErrKey, err)
	}
}

func (q *TranscriptQueue) reschedule(ctx context.Context, job *models.TranscriptJob, cause error) string {
	delay := q.Backoff(job.Attempts)
	q.updateJob(ctx, job.ID, func(j *models.TranscriptJob) {
		j.Status = models.TranscriptJobStatusQueued
		j.NextRunAt = q.now().UTC().Add(delay)
		j.LastError = cause.Error()
	})
	slog.InfoContext(ctx, "transcript not ready, job rescheduled", logging.ErrKey, cause, "delay", delay.String())
	q.metrics.ObserveTranscriptJob(job.Platform, jobResultRescheduled)
	return jobResultRescheduled
}

func (q *TranscriptQueue) fail(ctx context.Context, job *models.TranscriptJob, cause error) string {
	q.updateJob(ctx, job.ID, func(j *models.TranscriptJob) {
		j.Status = models.TranscriptJobStatusFailed
		j.LastError = cause.Error()
	})

	if domain.IsRetryable(cause) {
		slog.ErrorContext(ctx, "transcript job exhausted its retry budget", logging.ErrKey, cause,
			"max_attempts", job.MaxAttempts,
			logging.PriorityCritical(),
		)
	} else {
		slog.ErrorContext(ctx, "transcript job failed permanently", logging.ErrKey, cause)
	}

	q.failMeeting(ctx, job.MeetingID, cause)
	q.metrics.ObserveTranscriptJob(job.Platform, jobResultFailed)
	return jobResultFailed
}

// failMeeting marks the transcript and the meeting failed with cause.
func (q *TranscriptQueue) failMeeting(ctx context.Context, meetingID string, cause error) {
	if err := q.TranscriptService.MarkFailed(ctx, meetingID, cause); err != nil {
		slog.WarnContext(ctx, "failed to mark transcript as failed", logging.ErrKey, err)
	}
	if _, err := q.MeetingService.Fail(ctx, meetingID, cause.Error()); err != nil && domain.GetErrorType(err) != domain.ErrorTypeNotFound {
		slog.WarnContext(ctx, "failed to mark meeting as failed", logging.ErrKey, err)
	}
}

func (q *TranscriptQueue) complete(ctx context.Context, job *models.TranscriptJob) {
	q.updateJob(ctx, job.ID, func(j *models.TranscriptJob) {
		j.Status = models.TranscriptJobStatusSucceeded
		j.LastError = ""
	})
	q.metrics.ObserveTranscriptJob(job.Platform, jobResultSucceeded)
}

func (q *TranscriptQueue) updateJob(ctx context.Context, id string, mutate func(*models.TranscriptJob)) {
	var err error
	for range maxCASAttempts {
		var (
			job      *models.TranscriptJob
			revision uint64
		)
		job, revision, err = q.JobRepository.GetWithRevision(ctx, id)
		if err != nil {
			break
		}
		mutate(job)
		job.UpdatedAt = q.now().UTC()
		err = q.JobRepository.Update(ctx, job, revision)
		if err == nil || domain.GetErrorType(err) != domain.ErrorTypeConflict {
			break
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to update transcript job", logging.ErrKey, err, "job_id", id)
	}
}

func (q *TranscriptQueue) notify(ctx context.Context, job *models.TranscriptJob) {
	if q.Notifier == nil {
		return
	}
	err := q.Notifier.SendTranscriptJobEnqueued(ctx, models.TranscriptJobNotification{
		JobID:     job.ID,
		MeetingID: job.MeetingID,
		Platform:  job.Platform,
		NextRunAt: job.NextRunAt,
	})
	if err != nil {
		// the periodic dispatch still picks the job up
		slog.WarnContext(ctx, "failed to publish transcript job notification", logging.ErrKey, err)
	}
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
