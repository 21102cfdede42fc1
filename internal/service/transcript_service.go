// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/caption"
)

// TranscriptService downloads, normalizes and stores meeting transcripts.
type TranscriptService struct {
	TranscriptRepository domain.TranscriptRepository
	Fetcher              domain.TranscriptFetcher
	// Archive is optional; raw caption files are not kept when it is nil.
	Archive        domain.CaptionArchive
	MeetingService *MeetingService
	metrics        PipelineMetrics
	now            func() time.Time
}

// NewTranscriptService creates a new TranscriptService.
func NewTranscriptService(
	transcriptRepository domain.TranscriptRepository,
	fetcher domain.TranscriptFetcher,
	archive domain.CaptionArchive,
	meetingService *MeetingService,
	metrics PipelineMetrics,
) *TranscriptService {
	return &TranscriptService{
		TranscriptRepository: transcriptRepository,
		Fetcher:              fetcher,
		Archive:              archive,
		MeetingService:       meetingService,
		metrics:              metricsOrNoop(metrics),
		now:                  time.Now,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *TranscriptService) ServiceReady() bool {
	return s.TranscriptRepository != nil && s.Fetcher != nil && s.MeetingService != nil
}

// GetTranscript returns the transcript of a meeting.
func (s *TranscriptService) GetTranscript(ctx context.Context, meetingID string) (*models.Transcript, error) {
	return s.TranscriptRepository.GetByMeetingID(ctx, meetingID)
}

// FetchAndStore retrieves the transcript source of meeting, parses it and stores the
// normalized transcript. stored is true only for the call that moved the transcript to
// ready; a transcript that was already ready is returned untouched with stored false.
// Retryable errors leave the transcript pending; permanent ones mark it failed.
func (s *TranscriptService) FetchAndStore(ctx context.Context, meeting *models.Meeting, source models.TranscriptSource) (transcript *models.Transcript, stored bool, err error) {
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", meeting.ID))
	ctx = logging.AppendCtx(ctx, slog.String("source_kind", string(source.Kind)))

	transcript, err = s.beginAttempt(ctx, meeting, source)
	if err != nil {
		return nil, false, err
	}
	if transcript.Status == models.TranscriptStatusReady {
		slog.DebugContext(ctx, "transcript already stored, skipping fetch")
		return transcript, false, nil
	}

	s.advance(ctx, meeting.ID, models.MeetingStatusProcessing, models.ProcessingStepDownloading, 25)

	started := s.now()
	raw, err := s.Fetcher.FetchTranscript(ctx, source)
	s.metrics.ObserveFetch(meeting.Platform, started)
	if err != nil {
		slog.WarnContext(ctx, "transcript fetch failed", logging.ErrKey, err,
			"attempt", transcript.FetchAttempts,
			"retryable", domain.IsRetryable(err),
		)
		s.recordFetchError(ctx, meeting.ID, err)
		return nil, false, err
	}

	s.advance(ctx, meeting.ID, models.MeetingStatusProcessing, models.ProcessingStepParsing, 50)

	result, err := caption.Parse(raw)
	if err == nil && result.CueCount == 0 {
		err = caption.ErrEmptyInput
	}
	if err != nil {
		if errors.Is(err, caption.ErrEmptyInput) {
			err = domain.NewNotReadyError("transcript has no captions yet", err)
		} else {
			err = domain.NewValidationError("transcript could not be parsed", err)
		}
		s.recordFetchError(ctx, meeting.ID, err)
		return nil, false, err
	}

	archiveKey := s.archive(ctx, meeting, raw)

	var alreadyReady bool
	transcript, err = s.update(ctx, meeting.ID, func(t *models.Transcript) bool {
		// a concurrent fetch got there first
		if alreadyReady = t.Status == models.TranscriptStatusReady; alreadyReady {
			return false
		}
		t.Content = result.Content
		t.RawCaptionContent = raw
		t.SpeakerSegments = toSpeakerSegments(result.Segments)
		t.WordCount = result.WordCount
		t.Status = models.TranscriptStatusReady
		t.LastFetchError = ""
		t.Source = source
		if archiveKey != "" {
			t.ArchiveKey = archiveKey
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	if alreadyReady {
		slog.DebugContext(ctx, "transcript stored by a concurrent fetch")
		return transcript, false, nil
	}

	slog.InfoContext(ctx, "transcript stored",
		"word_count", transcript.WordCount,
		"segments", len(transcript.SpeakerSegments),
		"cues", result.CueCount,
	)
	s.advance(ctx, meeting.ID, models.MeetingStatusReady, models.ProcessingStepStoring, 75)
	return transcript, true, nil
}

// MarkFailed records a permanent failure on the transcript of meetingID.
func (s *TranscriptService) MarkFailed(ctx context.Context, meetingID string, cause error) error {
	_, err := s.update(ctx, meetingID, func(t *models.Transcript) bool {
		if t.Status == models.TranscriptStatusReady {
			return false
		}
		t.Status = models.TranscriptStatusFailed
		t.LastFetchError = cause.Error()
		return true
	})
	if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
		return nil
	}
	return err
}

// Reset puts the transcript of meetingID back to pending for a manual reprocess.
func (s *TranscriptService) Reset(ctx context.Context, meetingID string) (*models.Transcript, error) {
	return s.update(ctx, meetingID, func(t *models.Transcript) bool {
		t.Status = models.TranscriptStatusPending
		t.FetchAttempts = 0
		t.LastFetchError = ""
		return true
	})
}

// beginAttempt loads or creates the transcript record and, unless it is already ready,
// counts a new fetch attempt and moves it to fetching.
func (s *TranscriptService) beginAttempt(ctx context.Context, meeting *models.Meeting, source models.TranscriptSource) (*models.Transcript, error) {
	now := s.now().UTC()
	fresh := &models.Transcript{
		ID:            models.TranscriptIDFor(meeting.ID),
		MeetingID:     meeting.ID,
		Platform:      meeting.Platform,
		Status:        models.TranscriptStatusFetching,
		FetchAttempts: 1,
		Source:        source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.TranscriptRepository.Create(ctx, fresh)
	if err == nil {
		return fresh, nil
	}
	if domain.GetErrorType(err) != domain.ErrorTypeConflict {
		return nil, err
	}

	return s.update(ctx, meeting.ID, func(t *models.Transcript) bool {
		if t.Status == models.TranscriptStatusReady {
			return false
		}
		t.FetchAttempts++
		t.Status = models.TranscriptStatusFetching
		t.Source = source
		return true
	})
}

func (s *TranscriptService) recordFetchError(ctx context.Context, meetingID string, cause error) {
	status := models.TranscriptStatusFailed
	if domain.IsRetryable(cause) {
		status = models.TranscriptStatusPending
	}
	_, err := s.update(ctx, meetingID, func(t *models.Transcript) bool {
		if t.Status == models.TranscriptStatusReady {
			return false
		}
		t.Status = status
		t.LastFetchError = cause.Error()
		return true
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to record transcript fetch error", logging.ErrKey, err)
	}
}

// archive keeps the raw caption file. Archival is best effort; the key is empty when it failed.
func (s *TranscriptService) archive(ctx context.Context, meeting *models.Meeting, raw string) string {
	if s.Archive == nil {
		return ""
	}
	key := fmt.Sprintf("%s/%s.vtt", meeting.Platform, meeting.ID)
	if err := s.Archive.Store(ctx, key, []byte(raw)); err != nil {
		slog.WarnContext(ctx, "failed to archive raw caption file", logging.ErrKey, err, "archive_key", key)
		return ""
	}
	return key
}

func (s *TranscriptService) update(ctx context.Context, meetingID string, mutate func(*models.Transcript) bool) (*models.Transcript, error) {
	var err error
	for range maxCASAttempts {
		var (
			transcript *models.Transcript
			revision   uint64
		)
		transcript, revision, err = s.TranscriptRepository.GetByMeetingIDWithRevision(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		if !mutate(transcript) {
			return transcript, nil
		}
		transcript.UpdatedAt = s.now().UTC()

		err = s.TranscriptRepository.Update(ctx, transcript, revision)
		if err == nil {
			return transcript, nil
		}
		if domain.GetErrorType(err) != domain.ErrorTypeConflict {
			return nil, err
		}
	}
	return nil, err
}

func (s *TranscriptService) advance(ctx context.Context, meetingID string, status models.MeetingStatus, step string, progress int) {
	if _, err := s.MeetingService.Advance(ctx, meetingID, status, step, progress); err != nil {
		slog.WarnContext(ctx, "failed to advance meeting", logging.ErrKey, err, "status", status)
	}
}

func toSpeakerSegments(segments []caption.Segment) []models.SpeakerSegment {
	out := make([]models.SpeakerSegment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, models.SpeakerSegment{
			Speaker:   seg.Speaker,
			Text:      seg.Text,
			StartTime: seg.Start.Seconds(),
			EndTime:   seg.End.Seconds(),
		})
	}
	return out
}
