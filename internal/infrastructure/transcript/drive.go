// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/caption"
)

// exportMimeType is the format Meet transcript documents are exported in.
const exportMimeType = "text/plain"

// DriveConfig holds the Google service account used to export Meet transcript documents.
type DriveConfig struct {
	// CredentialsJSON is the service account key file content.
	CredentialsJSON []byte
	// Optional: override timeout for HTTP requests
	Timeout time.Duration
	// Optional: extra client options, used by tests to point at a fake endpoint
	Options []option.ClientOption
}

// DriveFetcher exports Meet transcript documents through the Drive API and converts them
// into caption text.
type DriveFetcher struct {
	service *drive.Service
	timeout time.Duration
}

var _ domain.TranscriptFetcher = (*DriveFetcher)(nil)

// NewDriveFetcher creates a Drive export fetcher.
func NewDriveFetcher(ctx context.Context, config DriveConfig) (*DriveFetcher, error) {
	if config.Timeout == 0 {
		config.Timeout = DefaultFetchTimeout
	}

	opts := config.Options
	if len(config.CredentialsJSON) > 0 {
		creds, err := google.CredentialsFromJSON(ctx, config.CredentialsJSON, drive.DriveReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse google credentials: %w", err)
		}
		opts = append([]option.ClientOption{option.WithTokenSource(creds.TokenSource)}, opts...)
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}

	return &DriveFetcher{service: service, timeout: config.Timeout}, nil
}

// FetchTranscript exports the transcript document as text and normalizes it into WebVTT.
func (f *DriveFetcher) FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error) {
	if source.Kind != models.TranscriptSourceDriveExport || source.DocumentID == "" {
		return "", domain.NewValidationError("drive transcript source requires a document id")
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.service.Files.Export(source.DocumentID, exportMimeType).Context(ctx).Download()
	if err != nil {
		return "", classifyDriveError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptBytes))
	if err != nil {
		return "", classifyTransportError(err)
	}

	vtt, err := caption.FromDocument(string(body))
	if err != nil {
		if errors.Is(err, caption.ErrEmptyInput) {
			return "", domain.NewNotReadyError("transcript document is empty", err)
		}
		return "", domain.NewInternalError("transcript document is malformed", err)
	}
	return vtt, nil
}

func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusForbidden && isRateLimitReason(apiErr) {
			return domain.NewNotReadyError("drive rate limit exceeded", err)
		}
		return classifyStatus(apiErr.Code, []byte(apiErr.Message))
	}
	return classifyTransportError(err)
}

// isRateLimitReason reports whether a 403 is Drive's user rate limit rather than an access error.
func isRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "userRateLimitExceeded", "rateLimitExceeded":
			return true
		}
	}
	return false
}
