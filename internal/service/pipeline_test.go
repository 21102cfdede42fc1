// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/idempotency"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/infrastructure/store"
)

const sampleVTT = "WEBVTT\n\n1\n00:00:01.000 --> 00:00:04.000\nAlice: Hello everyone\n\n" +
	"2\n00:00:04.500 --> 00:00:07.000\nBob: Hi Alice, shall we start\n"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMetrics struct {
	mu              sync.Mutex
	failOpen        int
	failures        int
	deadLetters     int
	alerts          int
	jobResults      map[string]int
	fetches         int
	lastFailureStat []models.PlatformFailureStats
}

func (m *recordingMetrics) ObserveFailOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen++
}

func (m *recordingMetrics) ObserveFailureRecorded(models.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *recordingMetrics) ObserveDeadLetter(models.Platform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters++
}

func (m *recordingMetrics) ObserveAlert(error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts++
}

func (m *recordingMetrics) ObserveTranscriptJob(_ models.Platform, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobResults == nil {
		m.jobResults = make(map[string]int)
	}
	m.jobResults[result]++
}

func (m *recordingMetrics) ObserveFetch(models.Platform, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
}

func (m *recordingMetrics) SetFailureStats(stats []models.PlatformFailureStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFailureStat = stats
}

// testPipeline wires every service over in-memory buckets, the way the server wires
// them over JetStream.
type testPipeline struct {
	clock   *fakeClock
	metrics *recordingMetrics

	meetingsKV    *store.MockKeyValue
	transcriptsKV *store.MockKeyValue
	rawEventsKV   *store.MockKeyValue
	failuresKV    *store.MockKeyValue
	deadLettersKV *store.MockKeyValue
	jobsKV        *store.MockKeyValue
	locksKV       *store.MockKeyValue

	messages *mocks.MockMessageBuilder
	fetcher  *mocks.MockTranscriptFetcher
	alerts   *mocks.MockAlertNotifier
	drafts   *mocks.MockDraftGenerator

	meetings    *MeetingService
	transcripts *TranscriptService
	queue       *TranscriptQueue
	retries     *RetryManager
	guard       *IdempotencyGuard
	router      *EventRouter
}

func testServiceConfig() ServiceConfig {
	config := DefaultServiceConfig()
	config.TranscriptWorkers = 2
	return config
}

func newTestPipeline(t *testing.T, configure ...func(*ServiceConfig)) *testPipeline {
	t.Helper()

	config := testServiceConfig()
	for _, fn := range configure {
		fn(&config)
	}

	p := &testPipeline{
		clock:         newFakeClock(),
		metrics:       &recordingMetrics{},
		meetingsKV:    store.NewMockKeyValue("meetings"),
		transcriptsKV: store.NewMockKeyValue("transcripts"),
		rawEventsKV:   store.NewMockKeyValue("raw-events"),
		failuresKV:    store.NewMockKeyValue("webhook-failures"),
		deadLettersKV: store.NewMockKeyValue("dead-letters"),
		jobsKV:        store.NewMockKeyValue("transcript-jobs"),
		locksKV:       store.NewMockKeyValue("idempotency-locks"),
		messages:      &mocks.MockMessageBuilder{},
		fetcher:       &mocks.MockTranscriptFetcher{},
		alerts:        &mocks.MockAlertNotifier{},
		drafts:        &mocks.MockDraftGenerator{},
	}
	p.messages.On("SendMeetingUpdated", mock.Anything, mock.Anything).Return(nil).Maybe()
	p.messages.On("SendTranscriptJobEnqueued", mock.Anything, mock.Anything).Return(nil).Maybe()

	p.meetings = NewMeetingService(store.NewNatsMeetingRepository(p.meetingsKV), p.messages)
	p.meetings.now = p.clock.Now

	p.transcripts = NewTranscriptService(store.NewNatsTranscriptRepository(p.transcriptsKV), p.fetcher, nil, p.meetings, p.metrics)
	p.transcripts.now = p.clock.Now

	p.queue = NewTranscriptQueue(store.NewNatsTranscriptJobRepository(p.jobsKV), p.messages, p.meetings, p.transcripts, nil, config, p.metrics)
	p.queue.now = p.clock.Now

	p.retries = NewRetryManager(store.NewNatsWebhookFailureRepository(p.failuresKV), store.NewNatsDeadLetterRepository(p.deadLettersKV), p.alerts, config, p.metrics)
	p.retries.now = p.clock.Now
	p.retries.SetMeetingFailer(p.meetings)

	p.guard = NewIdempotencyGuard(idempotency.NewNatsLockStore(p.locksKV), config, p.metrics)
	p.guard.now = p.clock.Now

	p.router = NewEventRouter(p.guard, store.NewNatsRawEventRepository(p.rawEventsKV), p.retries,
		NewZoomEventHandler(p.meetings, p.queue),
		NewTeamsEventHandler(p.meetings, p.queue, nil, ""),
		NewMeetEventHandler(p.meetings, p.queue),
	)
	p.router.now = p.clock.Now
	return p
}

func (p *testPipeline) zoomEvent(eventID string, action models.EventAction, source *models.TranscriptSource) *models.WebhookEvent {
	eventType := models.ZoomEventMeetingEnded
	switch action {
	case models.ActionRecordingReady:
		eventType = models.ZoomEventRecordingCompleted
	case models.ActionTranscriptReady:
		eventType = models.ZoomEventTranscriptCompleted
	}
	return &models.WebhookEvent{
		Platform:          models.PlatformZoom,
		EventType:         eventType,
		Action:            action,
		ExternalEventID:   eventID,
		PlatformMeetingID: "uuid-123==",
		Topic:             "Weekly sync",
		HostEmail:         "host@example.com",
		Source:            source,
		ReceivedAt:        p.clock.Now(),
	}
}

func zoomSource() *models.TranscriptSource {
	return &models.TranscriptSource{
		Kind:          models.TranscriptSourceDownloadURL,
		DownloadURL:   "https://zoom.us/rec/download/transcript.vtt",
		DownloadToken: "token",
	}
}
