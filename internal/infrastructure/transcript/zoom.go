// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package transcript

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

const (
	// ZoomAuthURL is the Zoom OAuth token endpoint
	ZoomAuthURL = "https://zoom.us/oauth/token"
)

// ZoomConfig holds the configuration of the Zoom recording downloader.
// The Server-to-Server OAuth credentials are optional; they are used when a
// webhook did not carry a download token.
type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	// Optional: override auth URL for testing
	AuthURL string
	// Optional: override timeout for HTTP requests
	Timeout time.Duration
}

// ZoomFetcher downloads caption files from the signed, short-lived URLs in Zoom recording events.
type ZoomFetcher struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	timeout     time.Duration
}

var _ domain.TranscriptFetcher = (*ZoomFetcher)(nil)

// NewZoomFetcher creates a Zoom transcript fetcher.
func NewZoomFetcher(config ZoomConfig) *ZoomFetcher {
	if config.AuthURL == "" {
		config.AuthURL = ZoomAuthURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultFetchTimeout
	}

	f := &ZoomFetcher{
		httpClient: &http.Client{},
		timeout:    config.Timeout,
	}

	if config.ClientID != "" && config.ClientSecret != "" {
		// Zoom Server-to-Server OAuth requires specific grant_type and account_id
		oauthConfig := &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.AuthURL,
			EndpointParams: url.Values{
				"grant_type": []string{"account_credentials"},
				"account_id": []string{config.AccountID},
			},
			AuthStyle: oauth2.AuthStyleInParams,
		}
		f.tokenSource = oauth2.ReuseTokenSource(nil, oauthConfig.TokenSource(context.Background()))
	}

	return f
}

// FetchTranscript downloads the caption file. The download token from the webhook is
// sent as a bearer token; URLs that already carry an access_token are used as is.
func (f *ZoomFetcher) FetchTranscript(ctx context.Context, source models.TranscriptSource) (string, error) {
	if source.Kind != models.TranscriptSourceDownloadURL || source.DownloadURL == "" {
		return "", domain.NewValidationError("zoom transcript source requires a download url")
	}

	downloadURL, err := url.Parse(source.DownloadURL)
	if err != nil {
		return "", domain.NewValidationError("invalid zoom download url", err)
	}

	header := http.Header{}
	switch {
	case source.DownloadToken != "":
		header.Set("Authorization", "Bearer "+source.DownloadToken)
	case downloadURL.Query().Get("access_token") != "":
	case f.tokenSource != nil:
		token, err := f.tokenSource.Token()
		if err != nil {
			return "", domain.NewUnavailableError("failed to get zoom access token", err)
		}
		header.Set("Authorization", "Bearer "+token.AccessToken)
	default:
		return "", domain.NewUnauthorizedError("no credentials available for zoom download")
	}

	body, respHeader, err := get(ctx, f.httpClient, f.timeout, downloadURL.String(), header)
	if err != nil {
		return "", err
	}
	body, err = ensureCaptionBody(ctx, body, respHeader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
