// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

// ReprocessMeeting is the operator re-entry into the transcript pipeline. The meeting
// goes back to pending, its transcript is reset and the job is queued again with a
// fresh attempt budget, reusing the last known transcript source.
func (q *TranscriptQueue) ReprocessMeeting(ctx context.Context, meetingID string) (*models.Meeting, *models.TranscriptJob, error) {
	ctx = logging.AppendCtx(ctx, slog.String("meeting_id", meetingID))

	meeting, err := q.MeetingService.Reprocess(ctx, meetingID)
	if err != nil {
		return nil, nil, err
	}

	var source *models.TranscriptSource
	transcript, err := q.TranscriptService.GetTranscript(ctx, meetingID)
	switch {
	case err == nil:
		if !transcript.Source.IsZero() {
			s := transcript.Source
			source = &s
		}
		if _, err := q.TranscriptService.Reset(ctx, meetingID); err != nil {
			return nil, nil, err
		}
	case domain.GetErrorType(err) != domain.ErrorTypeNotFound:
		return nil, nil, err
	}

	job, err := q.Requeue(ctx, meetingID, meeting.Platform, source)
	if err != nil {
		slog.WarnContext(ctx, "meeting reset but transcript job could not be requeued", logging.ErrKey, err)
		return meeting, nil, err
	}

	slog.InfoContext(ctx, "meeting requeued for reprocessing", "job_id", job.ID)
	return meeting, job, nil
}
