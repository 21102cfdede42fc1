// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

const (
	// GraphBaseURL is the Microsoft Graph API root
	GraphBaseURL = "https://graph.microsoft.com/v1.0"
	// GraphScope requests the application permissions granted to the app registration
	GraphScope = "https://graph.microsoft.com/.default"
	// maxGraphPages bounds pagination through transcript lists
	maxGraphPages = 50
)

// GraphConfig holds the Microsoft Graph application credentials.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Optional: override base URL for testing
	BaseURL string
	// Optional: override token URL for testing
	TokenURL string
	// Optional: override timeout for HTTP requests
	Timeout time.Duration
}

// GraphClient reads Teams online meetings and their transcripts from Microsoft Graph.
// The application token is memoized by the token source and refreshed when it expires.
type GraphClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

var (
	_ domain.TranscriptFetcher    = (*GraphClient)(nil)
	_ domain.TeamsMeetingResolver = (*GraphClient)(nil)
)

// NewGraphClient creates a Graph client authenticated with client credentials.
func NewGraphClient(config GraphConfig) *GraphClient {
	if config.BaseURL == "" {
		config.BaseURL = GraphBaseURL
	}
	if config.TokenURL == "" {
		config.TokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(config.TenantID))
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultFetchTimeout
	}

	oauthConfig := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
		Scopes:       []string{GraphScope},
	}
	tokenSource := oauth2.ReuseTokenSource(nil, oauthConfig.TokenSource(context.Background()))

	return &GraphClient{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{
				Base:   http.DefaultTransport,
				Source: tokenSource,
			},
		},
		baseURL: config.BaseURL,
		timeout: config.Timeout,
	}
}

func (c *GraphClient) meetingPath(organizerID, meetingID string) string {
	return fmt.Sprintf("%s/users/%s/onlineMeetings/%s", c.baseURL, url.PathEscape(organizerID), url.PathEscape(meetingID))
}

// GetOnlineMeeting returns the online meeting a notification refers to.
func (c *GraphClient) GetOnlineMeeting(ctx context.Context, organizerID, meetingID string) (*models.TeamsOnlineMeeting, error) {
	body, _, err := get(ctx, c.httpClient, c.timeout, c.meetingPath(organizerID, meetingID), nil)
	if err != nil {
		return nil, err
	}

	var meeting models.TeamsOnlineMeeting
	if err := json.Unmarshal(body, &meeting); err != nil {
		return nil, domain.NewInternalError("failed to decode online meeting", err)
	}
	return &meeting, nil
}

type transcriptPage struct {
	Value    []models.TeamsTranscriptMetadata `json:"value"`
	NextLink string                           `json:"@odata.nextLink"`
}

// ListTranscripts walks every page of the meeting's transcript list.
func (c *GraphClient) ListTranscripts(ctx context.Context, organizerID, meetingID string) ([]models.TeamsTranscriptMetadata, error) {
	var transcripts []models.TeamsTranscriptMetadata

	next := c.meetingPath(organizerID, meetingID) + "/transcripts"
	for page := 0; next != ""; page++ {
		if page == maxGraphPages {
			slog.WarnContext(ctx, "transcript list truncated", "pages", page, "meeting_id", meetingID)
			break
		}

		body, _, err := get(ctx, c.httpClient, c.timeout, next, nil)
		if err != nil {
			return nil, err
		}

		var result transcriptPage
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, domain.NewInternalError("failed to decode transcript list", err)
		}
		transcripts = append(transcripts, result.Value...)
		next = result.NextLink
	}

	return transcripts, nil
}

// FetchTranscript returns the WebVTT content of the requested transcript, or of the
// newest one when the source does not name it. An empty list means not ready yet.
func (c *GraphClient) FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error) {
	if source.Kind != models.TranscriptSourceGraph || source.OrganizerID == "" || source.ResourceID == "" {
		return "", domain.NewValidationError("graph transcript source requires organizer and meeting ids")
	}

	transcriptID := source.TranscriptID
	if transcriptID == "" {
		transcripts, err := c.ListTranscripts(ctx, source.OrganizerID, source.ResourceID)
		if err != nil {
			return "", err
		}
		newest := newestTranscript(transcripts)
		if newest == nil {
			return "", domain.NewNotReadyError("meeting has no transcripts yet")
		}
		transcriptID = newest.ID
	}

	contentURL := fmt.Sprintf("%s/transcripts/%s/content?$format=text/vtt",
		c.meetingPath(source.OrganizerID, source.ResourceID), url.PathEscape(transcriptID))
	body, header, err := get(ctx, c.httpClient, c.timeout, contentURL, http.Header{"Accept": []string{"text/vtt"}})
	if err != nil {
		return "", err
	}
	body, err = ensureCaptionBody(ctx, body, header)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func newestTranscript(transcripts []models.TeamsTranscriptMetadata) *models.TeamsTranscriptMetadata {
	var newest *models.TeamsTranscriptMetadata
	for i := range transcripts {
		if newest == nil || transcripts[i].CreatedDateTime.After(newest.CreatedDateTime) {
			newest = &transcripts[i]
		}
	}
	return newest
}
