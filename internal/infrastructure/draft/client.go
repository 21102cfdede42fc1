// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/auth0/go-auth0/authentication"
	"github.com/auth0/go-auth0/authentication/oauth"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

const (
	// DefaultTimeout bounds a single draft generation call
	DefaultTimeout = 60 * time.Second

	tokenExpiryLeeway = 60 * time.Second
	maxResponseBytes  = 1 << 20
)

// Config holds the draft service client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Optional machine-to-machine authentication through Auth0
	Auth0Domain string
	ClientID    string
	PrivateKey  string // RSA private key in PEM format
	Audience    string
}

// Client implements domain.DraftGenerator over the draft service HTTP API
type Client struct {
	httpClient *http.Client
	config     Config
}

var _ domain.DraftGenerator = (*Client)(nil)

// auth0TokenSource implements oauth2.TokenSource using Auth0 SDK with private key
type auth0TokenSource struct {
	ctx        context.Context
	authConfig *authentication.Authentication
	audience   string
}

// Token implements the oauth2.TokenSource interface
func (a *auth0TokenSource) Token() (*oauth2.Token, error) {
	body := oauth.LoginWithClientCredentialsRequest{
		Audience: a.audience,
	}

	tokenSet, err := a.authConfig.OAuth.LoginWithClientCredentials(a.ctx, body, oauth.IDTokenValidationOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Auth0: %w", err)
	}

	return &oauth2.Token{
		AccessToken: tokenSet.AccessToken,
		TokenType:   tokenSet.TokenType,
		Expiry:      time.Now().Add(time.Duration(tokenSet.ExpiresIn)*time.Second - tokenExpiryLeeway),
	}, nil
}

// NewClient creates a draft service client. When an Auth0 domain is configured every
// request carries a client-credentials token minted with the private key assertion.
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, domain.NewValidationError("draft service URL is required")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)

	if config.Auth0Domain != "" {
		if config.PrivateKey == "" {
			return nil, domain.NewValidationError("draft service private key is required when Auth0 is configured")
		}
		authConfig, err := authentication.New(
			ctx,
			config.Auth0Domain,
			authentication.WithClientID(config.ClientID),
			authentication.WithClientAssertion(config.PrivateKey, "RS256"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Auth0 client: %w", err)
		}

		transport = &oauth2.Transport{
			Source: oauth2.ReuseTokenSource(nil, &auth0TokenSource{
				ctx:        ctx,
				authConfig: authConfig,
				audience:   config.Audience,
			}),
			Base: transport,
		}
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
		config:     config,
	}, nil
}

// errorResponse is the error body of the draft service
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// GenerateDraft asks the draft service for a follow-up draft of a meeting transcript
func (c *Client) GenerateDraft(ctx context.Context, request models.DraftRequest) (*models.DraftResult, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, domain.NewInternalError("failed to marshal draft request", err)
	}

	url := c.config.BaseURL + "/drafts"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewInternalError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	slog.DebugContext(ctx, "draft service request",
		"url", url,
		"meeting_id", request.MeetingID,
		"transcript_chars", len(request.Context.TranscriptText),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewUnavailableError("draft service request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewUnavailableError("failed to read draft service response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.ErrorContext(ctx, "draft service response error",
			"status_code", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}

	var result models.DraftResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewInternalError("failed to parse draft service response", err)
	}
	return &result, nil
}

func mapHTTPError(statusCode int, body []byte) error {
	var errMsg errorResponse
	_ = json.Unmarshal(body, &errMsg)

	message := errMsg.Message
	if message == "" {
		message = errMsg.Error
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d error", statusCode)
	}

	switch {
	case statusCode == http.StatusBadRequest, statusCode == http.StatusUnprocessableEntity:
		return domain.NewValidationError(message)
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return domain.NewForbiddenError(fmt.Sprintf("authentication/authorization failed: %s", message))
	case statusCode == http.StatusNotFound:
		return domain.NewNotFoundError(message)
	case statusCode == http.StatusTooManyRequests, statusCode >= 500:
		return domain.NewUnavailableError(message)
	default:
		return domain.NewInternalError(message)
	}
}
