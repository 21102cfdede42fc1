// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package main is the meeting transcript service. It receives Zoom, Teams and Meet
// webhooks over HTTP, serves the operator API and runs the transcript jobs announced
// on NATS.
package main

import (
	"context"
	_ "expvar"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/messaging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/metrics"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/utils"
)

func main() {
	logging.InitStructureLogConfig()

	cfg, err := loadConfig()
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error loading configuration")
		os.Exit(1)
	}
	flags := parseFlags(cfg.Port)
	if flags.Debug {
		// Re-initialize so the debug level set by parseFlags takes effect.
		logging.InitStructureLogConfig()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	gracefulCloseWG := sync.WaitGroup{}

	otelShutdown, err := utils.SetupOTelSDK(ctx)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up OpenTelemetry")
		os.Exit(1)
	}

	// Set up JWT validator needed by the operator API.
	jwtAuth, err := setupJWTAuth(cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up JWT authentication")
		os.Exit(1)
	}

	authenticators, zoomChallenge, err := setupWebhookAuthenticators(cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up webhook authentication")
		os.Exit(1)
	}

	alerts, err := setupAlertNotifier(cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up alert notifier")
		os.Exit(1)
	}

	draftGenerator, err := setupDraftGenerator(ctx, cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up draft service client")
		os.Exit(1)
	}

	fetcher, teamsResolver, err := setupTranscriptFetcher(ctx, cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up transcript fetchers")
		os.Exit(1)
	}

	// Setup NATS connection
	natsConn, err := setupNATS(ctx, cfg, &gracefulCloseWG, done)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up NATS")
		return
	}

	// Get the key-value stores for the service.
	stores, err := getKeyValueStores(ctx, natsConn, cfg)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error getting key-value stores")
		return
	}
	repos := newRepositories(stores)

	var closers []io.Closer
	lockStore, lockCloser, err := setupLockStore(ctx, cfg, stores)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up idempotency lock store")
		return
	}
	if lockCloser != nil {
		closers = append(closers, lockCloser)
	}
	rawEvents, rawEventsCloser, err := setupRawEventRepository(ctx, cfg, stores)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up raw event store")
		return
	}
	if rawEventsCloser != nil {
		closers = append(closers, rawEventsCloser)
	}
	captionArchive, err := setupCaptionArchive(ctx, cfg, stores)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up caption archive")
		return
	}

	// Initialize services
	serviceConfig := cfg.serviceConfig()
	collector := metrics.New()
	messageBuilder := messaging.NewMessageBuilder(natsConn)

	meetingService := service.NewMeetingService(repos.Meeting, messageBuilder)
	transcriptService := service.NewTranscriptService(
		repos.Transcript,
		fetcher,
		captionArchive,
		meetingService,
		collector,
	)
	transcriptQueue := service.NewTranscriptQueue(
		repos.TranscriptJob,
		messageBuilder,
		meetingService,
		transcriptService,
		draftGenerator,
		serviceConfig,
		collector,
	)
	retryManager := service.NewRetryManager(
		repos.WebhookFailure,
		repos.DeadLetter,
		alerts,
		serviceConfig,
		collector,
	)
	retryManager.SetMeetingFailer(meetingService)
	guard := service.NewIdempotencyGuard(lockStore, serviceConfig, collector)
	router := service.NewEventRouter(
		guard,
		rawEvents,
		retryManager,
		service.NewZoomEventHandler(meetingService, transcriptQueue),
		service.NewTeamsEventHandler(meetingService, transcriptQueue, teamsResolver, cfg.Teams.ClientState),
		service.NewMeetEventHandler(meetingService, transcriptQueue),
	)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(router, authenticators, zoomChallenge, collector)
	operatorHandler := handlers.NewOperatorHandler(retryManager, transcriptQueue)
	transcriptJobHandler := handlers.NewTranscriptJobHandler(transcriptQueue)

	api := NewTranscriptAPI(
		webhookHandler,
		operatorHandler,
		jwtAuth,
		collector.Handler(),
		natsConn.IsConnected,
		transcriptQueue.ServiceReady,
		retryManager.ServiceReady,
	)

	httpServer := setupHTTPServer(flags, api, &gracefulCloseWG)

	// Create NATS subscriptions for the service.
	err = createNatsSubcriptions(ctx, transcriptJobHandler, natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS subscriptions")
		return
	}

	scheduler, err := NewScheduler(ctx, retryManager, transcriptQueue, cfg.Retry.SweepSchedule, cfg.Dispatch.Schedule)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error setting up scheduler")
		return
	}
	scheduler.Start()

	// This next line blocks until SIGINT or SIGTERM is received.
	<-done

	gracefulShutdown(httpServer, natsConn, scheduler, closers, otelShutdown, &gracefulCloseWG, cancel)
}

// createNatsSubcriptions subscribes the transcript job wake-up handler. Replicas share a
// queue group so one of them dispatches per notification.
func createNatsSubcriptions(ctx context.Context, handler domain.MessageHandler, natsConn *nats.Conn) error {
	slog.InfoContext(ctx, "subscribing to NATS subjects", "nats_url", natsConn.ConnectedUrl(), "queue", models.TranscriptJobQueueGroup)

	_, err := natsConn.QueueSubscribe(models.TranscriptJobEnqueuedSubject, models.TranscriptJobQueueGroup, func(msg *nats.Msg) {
		handler.HandleMessage(ctx, messaging.NewNatsMessage(msg))
	})
	if err != nil {
		slog.ErrorContext(ctx, "error subscribing to NATS subject", logging.ErrKey, err, "subject", models.TranscriptJobEnqueuedSubject)
		return err
	}

	return nil
}

// gracefulShutdown handles graceful shutdown of the application
func gracefulShutdown(
	httpServer *http.Server,
	natsConn *nats.Conn,
	scheduler *Scheduler,
	closers []io.Closer,
	otelShutdown func(context.Context) error,
	gracefulCloseWG *sync.WaitGroup,
	cancel context.CancelFunc,
) {
	slog.Info("graceful shutdown started")

	scheduler.Stop()

	// Cancel the background context so the NATS closed handler knows the
	// close is expected.
	cancel()

	go func() {
		// Run the HTTP shutdown in a goroutine so the NATS drain can also start.
		ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownSeconds*time.Second)
		defer cancelShutdown()

		slog.With("addr", httpServer.Addr).Info("shutting down http server")
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.With(logging.ErrKey, err).Error("http shutdown error")
		}
		// Decrement the wait group.
		gracefulCloseWG.Done()
	}()

	// Drain the NATS connection, which will drain all subscriptions, then close the
	// connection when complete.
	if !natsConn.IsClosed() && !natsConn.IsDraining() {
		slog.Info("draining NATS connections")
		if err := natsConn.Drain(); err != nil {
			slog.With(logging.ErrKey, err).Error("error draining NATS connection")
			// Skip waiting or checking error from drain; the closed handler will
			// still decrement the wait group.
		}
	}

	// Wait for the HTTP graceful shutdown and the NATS drain to complete.
	gracefulCloseWG.Wait()

	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			slog.With(logging.ErrKey, err).Warn("error closing connection")
		}
	}

	ctx, cancelOTel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelOTel()
	if err := otelShutdown(ctx); err != nil {
		slog.With(logging.ErrKey, err).Warn("error shutting down OpenTelemetry")
	}

	slog.Info("graceful shutdown complete")
}
