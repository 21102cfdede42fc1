// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/constants"
)

// PrincipalParser validates a bearer token and returns its principal.
type PrincipalParser interface {
	ParsePrincipal(ctx context.Context, token string, logger *slog.Logger) (string, error)
}

// BearerAuthMiddleware rejects requests without a valid bearer token and stores the
// principal in the request context.
func BearerAuthMiddleware(parser PrincipalParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := r.Header.Get(constants.AuthorizationHeader)
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				token, found = strings.CutPrefix(header, "bearer ")
			}
			if !found || strings.TrimSpace(token) == "" {
				writeUnauthorized(w)
				return
			}

			principal, err := parser.ParsePrincipal(ctx, strings.TrimSpace(token), slog.Default())
			if err != nil {
				slog.WarnContext(ctx, "operator request rejected", logging.ErrKey, err)
				writeUnauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, constants.PrincipalContextID, principal)
			ctx = logging.AppendCtx(ctx, slog.String("principal", principal))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal set by BearerAuthMiddleware.
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(constants.PrincipalContextID).(string)
	return principal
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="operator"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
