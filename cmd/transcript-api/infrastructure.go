// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/handlers"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/archive"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/auth"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/draft"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/idempotency"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/transcript"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/webhook"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
)

const (
	// gracefulShutdownSeconds should be higher than NATS client request timeout, and lower than the pod or liveness probe's terminationGracePeriodSeconds.
	gracefulShutdownSeconds = 25
	// natsSetupTimeout bounds the bucket creation calls at startup.
	natsSetupTimeout = 30 * time.Second
)

// natsStores are the JetStream buckets of the service.
type natsStores struct {
	Meetings         store.INatsKeyValue
	Transcripts      store.INatsKeyValue
	RawEvents        store.INatsKeyValue
	WebhookFailures  store.INatsKeyValue
	DeadLetters      store.INatsKeyValue
	TranscriptJobs   store.INatsKeyValue
	IdempotencyLocks store.INatsKeyValue
	// Captions is only created when the caption archive lives in NATS.
	Captions archive.INatsObjectStore
}

// repositories are the pipeline repositories backed by the NATS buckets.
type repositories struct {
	Meeting        domain.MeetingRepository
	Transcript     domain.TranscriptRepository
	WebhookFailure domain.WebhookFailureRepository
	DeadLetter     domain.DeadLetterRepository
	TranscriptJob  domain.TranscriptJobRepository
}

// setupJWTAuth configures JWT authentication for the operator API
func setupJWTAuth(cfg *config) (*auth.JWTAuth, error) {
	jwtAuthConfig := auth.JWTAuthConfig{
		JWKSURL:            cfg.JWKS.URL,
		Audience:           cfg.JWT.Audience,
		MockLocalPrincipal: cfg.JWT.AuthDisabledMockLocalPrincipal,
	}
	return auth.NewJWTAuth(jwtAuthConfig)
}

// setupNATS connects to NATS. A connection closed outside of a shutdown stops the service.
func setupNATS(ctx context.Context, cfg *config, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	natsURL := cfg.NATS.URL

	gracefulCloseWG.Add(1)
	natsConn, err := nats.Connect(
		natsURL,
		nats.Name("lfx-v2-meeting-transcript-service"),
		nats.DrainTimeout(gracefulShutdownSeconds*time.Second),
		nats.ConnectHandler(func(_ *nats.Conn) {
			slog.With("nats_url", natsURL).Info("NATS connection established")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, s *nats.Subscription, err error) {
			if s != nil {
				slog.With(logging.ErrKey, err, "subject", s.Subject, "queue", s.Queue).Error("async NATS error")
			} else {
				slog.With(logging.ErrKey, err).Error("async NATS error outside subscription")
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if ctx.Err() != nil {
				// Expected shutdown.
				gracefulCloseWG.Done()
				return
			}
			slog.Error("NATS connection closed unexpectedly, shutting down")
			gracefulCloseWG.Done()
			done <- os.Interrupt
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		slog.With(logging.ErrKey, err, "nats_url", natsURL).Error("error creating NATS client")
		return nil, err
	}
	return natsConn, nil
}

// getKeyValueStores creates or binds the buckets of the service. The lock bucket TTL is
// the idempotency lock lifetime.
func getKeyValueStores(ctx context.Context, natsConn *nats.Conn, cfg *config) (*natsStores, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		slog.With(logging.ErrKey, err).Error("error creating NATS JetStream client")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, natsSetupTimeout)
	defer cancel()

	bucket := func(name string, ttl time.Duration) (jetstream.KeyValue, error) {
		kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket: name,
			TTL:    ttl,
		})
		if err != nil {
			slog.With(logging.ErrKey, err, "store", name).Error("error getting NATS JetStream key-value store")
			return nil, err
		}
		return kv, nil
	}

	stores := &natsStores{}
	for _, b := range []struct {
		name string
		ttl  time.Duration
		dst  *store.INatsKeyValue
	}{
		{store.KVStoreNameMeetings, 0, &stores.Meetings},
		{store.KVStoreNameTranscripts, 0, &stores.Transcripts},
		{store.KVStoreNameRawEvents, 0, &stores.RawEvents},
		{store.KVStoreNameWebhookFailures, 0, &stores.WebhookFailures},
		{store.KVStoreNameDeadLetters, 0, &stores.DeadLetters},
		{store.KVStoreNameTranscriptJobs, 0, &stores.TranscriptJobs},
		{store.KVStoreNameIdempotencyLocks, cfg.Idempotency.LockTTL, &stores.IdempotencyLocks},
	} {
		kv, err := bucket(b.name, b.ttl)
		if err != nil {
			return nil, err
		}
		*b.dst = kv
	}

	if cfg.Archive.Backend == "nats" {
		objectStore, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      store.ObjectStoreNameTranscriptCaptions,
			Description: "raw caption files of stored transcripts",
		})
		if err != nil {
			slog.With(logging.ErrKey, err, "store", store.ObjectStoreNameTranscriptCaptions).Error("error getting NATS JetStream object store")
			return nil, err
		}
		stores.Captions = objectStore
	}

	return stores, nil
}

func newRepositories(stores *natsStores) *repositories {
	return &repositories{
		Meeting:        store.NewNatsMeetingRepository(stores.Meetings),
		Transcript:     store.NewNatsTranscriptRepository(stores.Transcripts),
		WebhookFailure: store.NewNatsWebhookFailureRepository(stores.WebhookFailures),
		DeadLetter:     store.NewNatsDeadLetterRepository(stores.DeadLetters),
		TranscriptJob:  store.NewNatsTranscriptJobRepository(stores.TranscriptJobs),
	}
}

// setupLockStore returns the idempotency lock store. The returned closer is nil for the
// NATS backend.
func setupLockStore(ctx context.Context, cfg *config, stores *natsStores) (domain.LockStore, io.Closer, error) {
	if cfg.Idempotency.Backend != "redis" {
		return idempotency.NewNatsLockStore(stores.IdempotencyLocks), nil, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	slog.With("addr", opts.Addr).Info("idempotency locks are kept in redis")
	return idempotency.NewRedisLockStore(client, idempotency.DefaultRedisKeyPrefix, cfg.Idempotency.LockTTL), client, nil
}

// setupRawEventRepository returns the raw event audit store. With the mysql store the
// table is migrated on startup.
func setupRawEventRepository(ctx context.Context, cfg *config, stores *natsStores) (domain.RawEventRepository, io.Closer, error) {
	if cfg.RawEvent.Store != "mysql" {
		return store.NewNatsRawEventRepository(stores.RawEvents), nil, nil
	}

	gormLog := gormlogger.New(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	repo := store.NewGormRawEventRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return repo, sqlDB, nil
}

// setupCaptionArchive returns the raw caption archive, or nil when archiving is off.
func setupCaptionArchive(ctx context.Context, cfg *config, stores *natsStores) (domain.CaptionArchive, error) {
	switch cfg.Archive.Backend {
	case "s3":
		s3Config := archive.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			EndpointURL:     cfg.S3.EndpointURL,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		}
		client, err := archive.NewS3Client(ctx, s3Config)
		if err != nil {
			return nil, err
		}
		return archive.NewS3Archive(client, s3Config)
	case "nats":
		return archive.NewNatsObjectArchive(stores.Captions), nil
	default:
		slog.Warn("caption archive is disabled, raw caption files are not kept")
		return nil, nil
	}
}

// setupAlertNotifier returns the SMTP dead-letter notifier, or a no-op one when SMTP is
// not configured.
func setupAlertNotifier(cfg *config) (domain.AlertNotifier, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("SMTP_HOST is not set, dead-letter alerts are only logged")
		return email.NewNoOpNotifier(), nil
	}
	return email.NewSMTPNotifier(email.SMTPConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		From:       cfg.SMTP.From,
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		Recipients: cfg.alertRecipients(),
	})
}

// setupDraftGenerator returns the draft service client, or nil when DRAFT_SERVICE_URL is
// not set.
func setupDraftGenerator(ctx context.Context, cfg *config) (domain.DraftGenerator, error) {
	if cfg.Draft.ServiceURL == "" {
		slog.Info("DRAFT_SERVICE_URL is not set, meetings complete without a draft")
		return nil, nil
	}
	return draft.NewClient(ctx, draft.Config{
		BaseURL:     cfg.Draft.ServiceURL,
		Timeout:     cfg.Draft.Timeout,
		Auth0Domain: cfg.Draft.Auth0Domain,
		ClientID:    cfg.Draft.ClientID,
		PrivateKey:  cfg.Draft.ClientPrivateKey,
		Audience:    cfg.Draft.Audience,
	})
}

// setupTranscriptFetcher registers a fetcher per transcript source kind. The Graph client
// doubles as the Teams meeting resolver and is nil when Teams is not configured.
func setupTranscriptFetcher(ctx context.Context, cfg *config) (*transcript.SourceFetcher, domain.TeamsMeetingResolver, error) {
	fetcher := transcript.NewSourceFetcher()

	fetcher.Register(models.TranscriptSourceDownloadURL, transcript.NewZoomFetcher(transcript.ZoomConfig{
		AccountID:    cfg.Zoom.AccountID,
		ClientID:     cfg.Zoom.ClientID,
		ClientSecret: cfg.Zoom.ClientSecret,
		Timeout:      cfg.Transcript.FetchTimeout,
	}))

	var resolver domain.TeamsMeetingResolver
	if cfg.Teams.TenantID != "" {
		graph := transcript.NewGraphClient(transcript.GraphConfig{
			TenantID:     cfg.Teams.TenantID,
			ClientID:     cfg.Teams.ClientID,
			ClientSecret: cfg.Teams.ClientSecret,
			Timeout:      cfg.Transcript.FetchTimeout,
		})
		fetcher.Register(models.TranscriptSourceGraph, graph)
		resolver = graph
	}

	if cfg.Google.CredentialsFile != "" {
		credentials, err := os.ReadFile(cfg.Google.CredentialsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read GOOGLE_CREDENTIALS_FILE: %w", err)
		}
		drive, err := transcript.NewDriveFetcher(ctx, transcript.DriveConfig{
			CredentialsJSON: credentials,
			Timeout:         cfg.Transcript.FetchTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		fetcher.Register(models.TranscriptSourceDriveExport, drive)
	}

	return fetcher, resolver, nil
}

// setupWebhookAuthenticators registers an authenticator for every configured platform.
// Webhooks of a platform without one are rejected as unknown.
func setupWebhookAuthenticators(cfg *config) (*webhook.Registry, handlers.ZoomChallengeSigner, error) {
	registry := webhook.NewRegistry()
	var zoomChallenge handlers.ZoomChallengeSigner

	if cfg.Zoom.WebhookSecretToken != "" {
		zoom := webhook.NewZoomAuthenticator(cfg.Zoom.WebhookSecretToken, cfg.Zoom.SignatureTolerance)
		registry.RegisterAuthenticator(models.PlatformZoom, zoom)
		zoomChallenge = zoom
	} else {
		slog.Warn("ZOOM_WEBHOOK_SECRET_TOKEN is not set, zoom webhooks are disabled")
	}

	if cfg.Teams.Issuer != "" && cfg.Teams.Audience != "" {
		teams, err := webhook.NewTeamsAuthenticator(webhook.TeamsAuthConfig{
			JWKSURL:  cfg.Teams.JWKSURL,
			Issuer:   cfg.Teams.Issuer,
			Audience: cfg.Teams.Audience,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up teams webhook authentication: %w", err)
		}
		registry.RegisterAuthenticator(models.PlatformTeams, teams)
	} else {
		slog.Warn("TEAMS_ISSUER or TEAMS_AUDIENCE is not set, teams webhooks are disabled")
	}

	if cfg.Meet.WebhookToken != "" {
		registry.RegisterAuthenticator(models.PlatformMeet, webhook.NewMeetAuthenticator(cfg.Meet.WebhookToken))
	} else {
		slog.Warn("MEET_WEBHOOK_TOKEN is not set, meet webhooks are disabled")
	}

	return registry, zoomChallenge, nil
}
