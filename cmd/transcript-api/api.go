// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/constants"
)

// TranscriptAPI groups the HTTP surface of the service.
type TranscriptAPI struct {
	webhooks  *handlers.WebhookHandler
	operator  *handlers.OperatorHandler
	principal middleware.PrincipalParser
	metrics   http.Handler
	// readiness checks, all must pass for /readyz to succeed
	checks []func() bool
}

// NewTranscriptAPI creates a new TranscriptAPI.
func NewTranscriptAPI(
	webhooks *handlers.WebhookHandler,
	operator *handlers.OperatorHandler,
	principal middleware.PrincipalParser,
	metrics http.Handler,
	checks ...func() bool,
) *TranscriptAPI {
	return &TranscriptAPI{
		webhooks:  webhooks,
		operator:  operator,
		principal: principal,
		metrics:   metrics,
		checks:    checks,
	}
}

// ServiceReady reports whether every dependency of the API is usable.
func (a *TranscriptAPI) ServiceReady() bool {
	if a.webhooks == nil || !a.webhooks.HandlerReady() || a.operator == nil || !a.operator.HandlerReady() {
		return false
	}
	for _, ready := range a.checks {
		if !ready() {
			return false
		}
	}
	return true
}

// Readyz checks if the service is able to take inbound requests.
func (a *TranscriptAPI) Readyz(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeText)
	if !a.ServiceReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("service unavailable\n"))
		return
	}
	_, _ = w.Write([]byte("OK\n"))
}

// Livez checks if the service is alive.
func (a *TranscriptAPI) Livez(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	// This always returns as long as the service is still running. As this
	// endpoint is expected to be used as a Kubernetes liveness check, this
	// service must likewise self-detect non-recoverable errors and
	// self-terminate.
	w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeText)
	_, _ = w.Write([]byte("OK\n"))
}
