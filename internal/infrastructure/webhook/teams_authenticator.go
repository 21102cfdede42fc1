// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

const (
	// DefaultTeamsJWKSURL is the Microsoft identity platform signing key set.
	DefaultTeamsJWKSURL = "https://login.microsoftonline.com/common/discovery/v2.0/keys"
	// DefaultJWKSCacheTTL is how long fetched signing keys are reused before a refresh.
	DefaultJWKSCacheTTL = time.Hour
)

// TeamsAuthConfig holds the expected token issuer and audience of Teams notifications.
type TeamsAuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	CacheTTL time.Duration
}

// TeamsAuthenticator validates the RS256 bearer token of a Microsoft Graph notification
// against the rotating signing key set, checking issuer and audience.
type TeamsAuthenticator struct {
	validator *validator.Validator
}

var _ domain.WebhookAuthenticator = (*TeamsAuthenticator)(nil)

// NewTeamsAuthenticator creates a new Teams webhook authenticator
func NewTeamsAuthenticator(config TeamsAuthConfig) (*TeamsAuthenticator, error) {
	if config.JWKSURL == "" {
		config.JWKSURL = DefaultTeamsJWKSURL
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultJWKSCacheTTL
	}

	issuer, err := url.Parse(config.Issuer)
	if err != nil {
		return nil, err
	}
	jwksURL, err := url.Parse(config.JWKSURL)
	if err != nil {
		return nil, err
	}

	provider := jwks.NewCachingProvider(issuer, config.CacheTTL, jwks.WithCustomJWKSURI(jwksURL))

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		config.Issuer,
		[]string{config.Audience},
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &TeamsAuthenticator{validator: jwtValidator}, nil
}

// Authenticate validates the Authorization bearer token.
func (a *TeamsAuthenticator) Authenticate(ctx context.Context, headers http.Header, body []byte) error {
	token, err := bearerToken(headers)
	if err != nil {
		return err
	}

	if _, err := a.validator.ValidateToken(ctx, token); err != nil {
		slog.WarnContext(ctx, "teams webhook token rejected", logging.ErrKey, err)
		return domain.NewForbiddenError("invalid webhook token", err)
	}
	return nil
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(headers http.Header) (string, error) {
	authorization := headers.Get("Authorization")
	if authorization == "" {
		return "", domain.NewUnauthorizedError("missing authorization header")
	}
	scheme, token, found := strings.Cut(authorization, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", domain.NewUnauthorizedError("malformed authorization header", errors.New("expected a bearer token"))
	}
	return strings.TrimSpace(token), nil
}
