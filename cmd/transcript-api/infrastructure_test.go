// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/email"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/idempotency"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/webhook"
)

func newMockStores() *natsStores {
	return &natsStores{
		Meetings:         store.NewMockKeyValue(store.KVStoreNameMeetings),
		Transcripts:      store.NewMockKeyValue(store.KVStoreNameTranscripts),
		RawEvents:        store.NewMockKeyValue(store.KVStoreNameRawEvents),
		WebhookFailures:  store.NewMockKeyValue(store.KVStoreNameWebhookFailures),
		DeadLetters:      store.NewMockKeyValue(store.KVStoreNameDeadLetters),
		TranscriptJobs:   store.NewMockKeyValue(store.KVStoreNameTranscriptJobs),
		IdempotencyLocks: store.NewMockKeyValue(store.KVStoreNameIdempotencyLocks),
	}
}

func TestSetupWebhookAuthenticators(t *testing.T) {
	t.Run("only configured platforms are enabled", func(t *testing.T) {
		cfg := &config{}
		cfg.Meet.WebhookToken = "meet-token"

		registry, zoomChallenge, err := setupWebhookAuthenticators(cfg)
		require.NoError(t, err)
		assert.Nil(t, zoomChallenge)

		_, err = registry.GetAuthenticator(models.PlatformZoom)
		assert.Error(t, err)
		_, err = registry.GetAuthenticator(models.PlatformTeams)
		assert.Error(t, err)
		meet, err := registry.GetAuthenticator(models.PlatformMeet)
		require.NoError(t, err)
		assert.IsType(t, &webhook.MeetAuthenticator{}, meet)
	})

	t.Run("zoom authenticator answers the url challenge", func(t *testing.T) {
		cfg := &config{}
		cfg.Zoom.WebhookSecretToken = "zoom-secret"
		cfg.Teams.Issuer = "https://sts.windows.net/tenant/"
		cfg.Teams.Audience = "client-id"

		registry, zoomChallenge, err := setupWebhookAuthenticators(cfg)
		require.NoError(t, err)
		require.NotNil(t, zoomChallenge)
		assert.NotEmpty(t, zoomChallenge.EncryptToken("plain"))

		zoom, err := registry.GetAuthenticator(models.PlatformZoom)
		require.NoError(t, err)
		assert.Same(t, zoom, zoomChallenge)
		_, err = registry.GetAuthenticator(models.PlatformTeams)
		assert.NoError(t, err)
	})
}

func TestSetupAlertNotifier(t *testing.T) {
	notifier, err := setupAlertNotifier(&config{})
	require.NoError(t, err)
	assert.IsType(t, &email.NoOpNotifier{}, notifier)

	cfg := &config{}
	cfg.SMTP.Host = "smtp.example.org"
	cfg.SMTP.Port = 587
	cfg.SMTP.From = "alerts@example.org"
	_, err = setupAlertNotifier(cfg)
	assert.Error(t, err, "recipients are required")

	cfg.Alert.Recipients = "ops@example.org"
	notifier, err = setupAlertNotifier(cfg)
	require.NoError(t, err)
	assert.IsType(t, &email.SMTPNotifier{}, notifier)
}

func TestSetupDraftGenerator(t *testing.T) {
	generator, err := setupDraftGenerator(context.Background(), &config{})
	require.NoError(t, err)
	assert.Nil(t, generator)

	cfg := &config{}
	cfg.Draft.ServiceURL = "https://drafts.example.org"
	generator, err = setupDraftGenerator(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, generator)
}

func TestSetupTranscriptFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("teams resolver only with a tenant", func(t *testing.T) {
		fetcher, resolver, err := setupTranscriptFetcher(ctx, &config{})
		require.NoError(t, err)
		assert.NotNil(t, fetcher)
		assert.Nil(t, resolver)

		cfg := &config{}
		cfg.Teams.TenantID = "tenant"
		cfg.Teams.ClientID = "client"
		cfg.Teams.ClientSecret = "secret"
		_, resolver, err = setupTranscriptFetcher(ctx, cfg)
		require.NoError(t, err)
		assert.NotNil(t, resolver)
	})

	t.Run("unreadable google credentials", func(t *testing.T) {
		cfg := &config{}
		cfg.Google.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
		_, _, err := setupTranscriptFetcher(ctx, cfg)
		assert.Error(t, err)
	})

	t.Run("malformed google credentials", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "credentials.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
		cfg := &config{}
		cfg.Google.CredentialsFile = path
		_, _, err := setupTranscriptFetcher(ctx, cfg)
		assert.Error(t, err)
	})
}

func TestSetupStores(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()

	cfg := &config{}
	cfg.Idempotency.Backend = "nats"
	lockStore, closer, err := setupLockStore(ctx, cfg, stores)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &idempotency.NatsLockStore{}, lockStore)

	cfg.Idempotency.Backend = "redis"
	cfg.Redis.URL = "not a url"
	_, _, err = setupLockStore(ctx, cfg, stores)
	assert.Error(t, err)

	cfg.RawEvent.Store = "nats"
	rawEvents, closer, err := setupRawEventRepository(ctx, cfg, stores)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &store.NatsRawEventRepository{}, rawEvents)

	cfg.Archive.Backend = "none"
	captionArchive, err := setupCaptionArchive(ctx, cfg, stores)
	require.NoError(t, err)
	assert.Nil(t, captionArchive)

	repos := newRepositories(stores)
	assert.NotNil(t, repos.Meeting)
	assert.NotNil(t, repos.TranscriptJob)
}
