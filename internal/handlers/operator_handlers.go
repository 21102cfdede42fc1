// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
)

// DeadLetterOperator exposes the dead letter queue and failure statistics.
type DeadLetterOperator interface {
	ListDeadLetters(ctx context.Context, includeResolved bool) ([]*models.DeadLetterEntry, error)
	RetryDeadLetter(ctx context.Context, id, note string) (*models.WebhookFailure, error)
	Stats(ctx context.Context) ([]models.PlatformFailureStats, error)
}

// MeetingReprocessor puts a finished meeting back through the transcript pipeline.
type MeetingReprocessor interface {
	ReprocessMeeting(ctx context.Context, meetingID string) (*models.Meeting, *models.TranscriptJob, error)
}

// RetryDeadLetterRequest is the body of a dead letter retry.
type RetryDeadLetterRequest struct {
	Note string `json:"note"`
}

// DeadLettersResponse lists dead letter entries.
type DeadLettersResponse struct {
	DeadLetters []*models.DeadLetterEntry `json:"dead_letters"`
	Total       int                       `json:"total"`
}

// StatsResponse holds the failure statistics of every platform.
type StatsResponse struct {
	Platforms []models.PlatformFailureStats `json:"platforms"`
}

// ReprocessResponse describes a requeued meeting.
type ReprocessResponse struct {
	Meeting *models.Meeting       `json:"meeting"`
	Job     *models.TranscriptJob `json:"job"`
}

// maxOperatorBodyBytes caps operator request bodies.
const maxOperatorBodyBytes = 64 << 10

// OperatorHandler serves the operator API.
type OperatorHandler struct {
	DeadLetters DeadLetterOperator
	Reprocessor MeetingReprocessor
}

func NewOperatorHandler(deadLetters DeadLetterOperator, reprocessor MeetingReprocessor) *OperatorHandler {
	return &OperatorHandler{
		DeadLetters: deadLetters,
		Reprocessor: reprocessor,
	}
}

func (h *OperatorHandler) HandlerReady() bool {
	return h.DeadLetters != nil && h.Reprocessor != nil
}

// ListDeadLetters serves GET /operator/dead-letters. Resolved entries are listed with
// ?include_resolved=true.
func (h *OperatorHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	includeResolved := false
	if raw := r.URL.Query().Get("include_resolved"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(ctx, w, domain.NewValidationError("include_resolved must be a boolean", err))
			return
		}
		includeResolved = parsed
	}

	entries, err := h.DeadLetters.ListDeadLetters(ctx, includeResolved)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if entries == nil {
		entries = []*models.DeadLetterEntry{}
	}
	writeJSON(ctx, w, http.StatusOK, DeadLettersResponse{DeadLetters: entries, Total: len(entries)})
}

// RetryDeadLetter serves POST /operator/dead-letters/:id/retry.
func (h *OperatorHandler) RetryDeadLetter(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ctx := logging.AppendCtx(r.Context(), slog.String("dead_letter_id", id))

	var request RetryDeadLetterRequest
	if err := decodeOptionalJSON(r, &request); err != nil {
		writeError(ctx, w, err)
		return
	}
	if principal := middleware.PrincipalFromContext(ctx); principal != "" {
		if request.Note == "" {
			request.Note = "retried by " + principal
		} else {
			request.Note = request.Note + " (" + principal + ")"
		}
	}

	failure, err := h.DeadLetters.RetryDeadLetter(ctx, id, request.Note)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	slog.InfoContext(ctx, "dead letter scheduled for retry", "failure_id", failure.ID)
	writeJSON(ctx, w, http.StatusAccepted, failure)
}

// Stats serves GET /operator/stats.
func (h *OperatorHandler) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()

	stats, err := h.DeadLetters.Stats(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, StatsResponse{Platforms: stats})
}

// ReprocessMeeting serves POST /operator/meetings/:id/reprocess.
func (h *OperatorHandler) ReprocessMeeting(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	ctx := logging.AppendCtx(r.Context(), slog.String("meeting_id", id))

	meeting, job, err := h.Reprocessor.ReprocessMeeting(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusAccepted, ReprocessResponse{Meeting: meeting, Job: job})
}

// decodeOptionalJSON decodes a JSON body into v; an empty body leaves v untouched.
func decodeOptionalJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxOperatorBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("malformed request body", domain.ErrUnmarshal, err)
	}
	return nil
}
