// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/middleware"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/constants"
)

// newRouter mounts the routes of the service and wraps them in the HTTP middleware.
func newRouter(api *TranscriptAPI) http.Handler {
	mux := httprouter.New()

	mux.POST(constants.WebhookPathPrefix+":platform", api.webhooks.HandleWebhook)

	operator := withBearerAuth(api.principal)
	mux.GET("/operator/dead-letters", operator(api.operator.ListDeadLetters))
	mux.POST("/operator/dead-letters/:id/retry", operator(api.operator.RetryDeadLetter))
	mux.GET("/operator/stats", operator(api.operator.Stats))
	mux.POST("/operator/meetings/:id/reprocess", operator(api.operator.ReprocessMeeting))

	mux.GET("/livez", api.Livez)
	mux.GET("/readyz", api.Readyz)
	if api.metrics != nil {
		mux.Handler(http.MethodGet, "/metrics", api.metrics)
	}

	var handler http.Handler = mux

	// Add HTTP middleware
	// Note: Order matters - RequestIDMiddleware should come first in the chain,
	// so it should be the last middleware added to the handler since it is executed in reverse order.
	handler = middleware.WebhookBodyCaptureMiddleware(constants.MaxWebhookBodyBytes)(handler)
	handler = middleware.RequestLoggerMiddleware()(handler)
	handler = middleware.RequestIDMiddleware()(handler)
	handler = otelhttp.NewHandler(handler, "transcript-api", otelhttp.WithFilter(func(r *http.Request) bool {
		return r.URL.Path != "/livez" && r.URL.Path != "/readyz" && r.URL.Path != "/metrics"
	}))

	return handler
}

// withBearerAuth adapts the bearer token middleware to httprouter handles.
func withBearerAuth(parser middleware.PrincipalParser) func(httprouter.Handle) httprouter.Handle {
	auth := middleware.BearerAuthMiddleware(parser)
	return func(handle httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, ps)
			})).ServeHTTP(w, r)
		}
	}
}

// setupHTTPServer configures and starts the HTTP server
func setupHTTPServer(flags flags, api *TranscriptAPI, gracefulCloseWG *sync.WaitGroup) *http.Server {
	// Set up http listener in a goroutine using provided command line parameters.
	var addr string
	if flags.Bind == "*" {
		addr = ":" + flags.Port
	} else {
		addr = flags.Bind + ":" + flags.Port
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           newRouter(api),
		ReadHeaderTimeout: 3 * time.Second,
	}
	gracefulCloseWG.Add(1)
	go func() {
		slog.With("addr", addr).Debug("starting http server, listening on port " + flags.Port)
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.With(logging.ErrKey, err).Error("http listener error")
			os.Exit(1)
		}
		// Because ErrServerClosed is *immediately* returned when Shutdown is
		// called, not when when Shutdown completes, this must not yet decrement
		// the wait group.
	}()

	return httpServer
}
