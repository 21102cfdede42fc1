// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

const (
	// DefaultFetchTimeout bounds every transcript network call.
	DefaultFetchTimeout = 20 * time.Second
	// maxTranscriptBytes caps how much of a response body is read.
	maxTranscriptBytes = 32 << 20
)

// notReadyMarkers are phrases platforms put in error bodies while a transcript is still being produced.
var notReadyMarkers = []string{"processing", "not ready", "not yet available", "in progress"}

// get performs a GET request under timeout and returns the body of a 2xx response.
// Every other outcome is classified into a domain error.
func get(ctx context.Context, client *http.Client, timeout time.Duration, url string, header http.Header) ([]byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, domain.NewValidationError("invalid transcript url", err)
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	startTime := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return nil, nil, classifyTransportError(err)
	}

	slog.DebugContext(ctx, "transcript request completed",
		"host", req.URL.Host,
		"status", resp.StatusCode,
		"duration", time.Since(startTime).String(),
	)

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

// classifyTransportError maps network failures: timeouts are "not ready yet", the rest
// make the platform unavailable. Both are retryable.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewNotReadyError("transcript request timed out", err)
	}
	return domain.NewUnavailableError("transcript request failed", err)
}

// classifyStatus maps an HTTP status to a domain error. Not-found, conflict, too-early and
// rate limiting mean the transcript is not ready yet.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound,
		status == http.StatusConflict,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests:
		return domain.NewNotReadyError(fmt.Sprintf("transcript not ready (status %d)", status), errorFromBody(body))
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.NewForbiddenError(fmt.Sprintf("transcript access denied (status %d)", status), errorFromBody(body))
	case status >= 500:
		if hasNotReadyMarker(body) {
			return domain.NewNotReadyError(fmt.Sprintf("transcript not ready (status %d)", status), errorFromBody(body))
		}
		return domain.NewUnavailableError(fmt.Sprintf("transcript service error (status %d)", status), errorFromBody(body))
	default:
		if hasNotReadyMarker(body) {
			return domain.NewNotReadyError(fmt.Sprintf("transcript not ready (status %d)", status), errorFromBody(body))
		}
		return domain.NewInternalError(fmt.Sprintf("transcript request rejected (status %d)", status), errorFromBody(body))
	}
}

func hasNotReadyMarker(body []byte) bool {
	text := strings.ToLower(string(body))
	for _, marker := range notReadyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// errorFromBody extracts the message of a JSON error body, falling back to the raw text.
func errorFromBody(body []byte) error {
	var errResp struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			return errors.New(errResp.Message)
		case errResp.Error.Message != "":
			return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		return nil
	}
	return errors.New(text)
}

// ensureCaptionBody rejects bodies that are clearly not caption text, such as JSON status
// documents returned with a 200 while the file is still being generated.
func ensureCaptionBody(ctx context.Context, body []byte, header http.Header) ([]byte, error) {
	contentType := header.Get("Content-Type")
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, domain.NewNotReadyError("transcript body is empty")
	}
	if strings.HasPrefix(contentType, "application/json") || strings.HasPrefix(trimmed, "{") {
		if hasNotReadyMarker(body) {
			return nil, domain.NewNotReadyError("transcript is still processing", errorFromBody(body))
		}
		slog.WarnContext(ctx, "unexpected JSON transcript body", "content_type", contentType, logging.ErrKey, errorFromBody(body))
		return nil, domain.NewInternalError("transcript body is not caption text", errorFromBody(body))
	}
	return body, nil
}
