// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

const zoomMeetingEnded = `{
  "event": "meeting.ended",
  "event_ts": 1741100400000,
  "payload": {
    "account_id": "acc-1",
    "object": {
      "uuid": "4444AAAiAAAAAiAiAiiAii==",
      "id": 85212345678,
      "host_email": "host@example.com",
      "topic": "Weekly sync",
      "start_time": "2025-03-04T14:00:00Z",
      "duration": 45
    }
  }
}`

const zoomTranscriptCompleted = `{
  "event": "recording.transcript_completed",
  "event_ts": 1741101000000,
  "download_token": "dl-token",
  "payload": {
    "object": {
      "uuid": "4444AAAiAAAAAiAiAiiAii==",
      "id": 85212345678,
      "topic": "Weekly sync",
      "start_time": "2025-03-04T14:00:00Z",
      "end_time": "2025-03-04T14:47:00Z",
      "recording_files": [
        {"id": "cc-1", "file_type": "CC", "download_url": "https://zoom.us/rec/download/cc"},
        {"id": "tr-1", "file_type": "TRANSCRIPT", "download_url": "https://zoom.us/rec/download/transcript"}
      ]
    }
  }
}`

func TestZoomEventHandler_Normalize(t *testing.T) {
	h := NewZoomEventHandler(nil, nil)
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	t.Run("meeting ended", func(t *testing.T) {
		events, err := h.Normalize(context.Background(), []byte(zoomMeetingEnded))
		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Equal(t, models.PlatformZoom, event.Platform)
		assert.Equal(t, models.ActionConferenceEnded, event.Action)
		assert.Equal(t, "meeting.ended:4444AAAiAAAAAiAiAiiAii==:1741100400000", event.ExternalEventID)
		assert.Equal(t, "4444AAAiAAAAAiAiAiiAii==", event.PlatformMeetingID)
		assert.Equal(t, "host@example.com", event.HostEmail)
		require.NotNil(t, event.EndTime)
		assert.True(t, time.Date(2025, 3, 4, 14, 45, 0, 0, time.UTC).Equal(*event.EndTime))
		assert.Nil(t, event.Source)
		assert.Equal(t, now, event.ReceivedAt)
		assert.JSONEq(t, zoomMeetingEnded, string(event.Payload))
	})

	t.Run("transcript completed prefers the transcript file", func(t *testing.T) {
		events, err := h.Normalize(context.Background(), []byte(zoomTranscriptCompleted))
		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Equal(t, models.ActionTranscriptReady, event.Action)
		require.NotNil(t, event.Source)
		assert.Equal(t, models.TranscriptSource{
			Kind:          models.TranscriptSourceDownloadURL,
			DownloadURL:   "https://zoom.us/rec/download/transcript",
			DownloadToken: "dl-token",
			TranscriptID:  "tr-1",
		}, *event.Source)
		require.NotNil(t, event.EndTime)
		assert.True(t, time.Date(2025, 3, 4, 14, 47, 0, 0, time.UTC).Equal(*event.EndTime))
	})

	tests := []struct {
		name        string
		body        string
		wantEvents  int
		wantErrType *domain.ErrorType
	}{
		{
			name:       "url validation is answered elsewhere",
			body:       `{"event":"endpoint.url_validation","payload":{"plainToken":"abc"}}`,
			wantEvents: 0,
		},
		{
			name:       "unhandled event type",
			body:       `{"event":"meeting.participant_joined","payload":{"object":{"uuid":"u"}}}`,
			wantEvents: 0,
		},
		{
			name:        "malformed json",
			body:        `{"event":`,
			wantErrType: errTypePtr(domain.ErrorTypeValidation),
		},
		{
			name:        "missing meeting uuid",
			body:        `{"event":"meeting.ended","event_ts":1,"payload":{"object":{"topic":"x"}}}`,
			wantErrType: errTypePtr(domain.ErrorTypeValidation),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := h.Normalize(context.Background(), []byte(tt.body))
			if tt.wantErrType != nil {
				require.Error(t, err)
				assert.Equal(t, *tt.wantErrType, domain.GetErrorType(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, events, tt.wantEvents)
		})
	}
}

func TestZoomEventHandler_URLValidation(t *testing.T) {
	h := NewZoomEventHandler(nil, nil)

	token, ok, err := h.URLValidation([]byte(`{"event":"endpoint.url_validation","payload":{"plainToken":"qgg8vlvZRS6UYooatFL8Aw"}}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "qgg8vlvZRS6UYooatFL8Aw", token)

	_, ok, err = h.URLValidation([]byte(zoomMeetingEnded))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = h.URLValidation([]byte(`{"event":"endpoint.url_validation","payload":{}}`))
	require.Error(t, err)
	assert.True(t, ok)
}

func TestZoomEventHandler_HandleQueuesTranscript(t *testing.T) {
	p := newTestPipeline(t)
	h := NewZoomEventHandler(p.meetings, p.queue)

	events, err := h.Normalize(context.Background(), []byte(zoomTranscriptCompleted))
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := h.Handle(context.Background(), events[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)
	assert.Equal(t, 1, p.jobsKV.Len())
	p.fetcher.AssertNotCalled(t, "FetchTranscript", mock.Anything, mock.Anything)
}

func TestZoomEventHandler_NotConfigured(t *testing.T) {
	h := NewZoomEventHandler(nil, nil)

	_, err := h.Handle(context.Background(), &models.WebhookEvent{Platform: models.PlatformZoom})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

func teamsNotification(odataType, resource, clientState string) models.TeamsChangeNotification {
	return models.TeamsChangeNotification{
		SubscriptionID: "sub-1",
		ChangeType:     "created",
		Resource:       resource,
		ClientState:    clientState,
		TenantID:       "tenant-1",
		ResourceData:   models.TeamsResourceData{ODataType: odataType, ID: "tr-1"},
	}
}

func teamsBody(t *testing.T, notifications ...models.TeamsChangeNotification) []byte {
	t.Helper()
	body, err := json.Marshal(models.TeamsNotificationCollection{Value: notifications})
	require.NoError(t, err)
	return body
}

func TestTeamsEventHandler_Normalize(t *testing.T) {
	h := NewTeamsEventHandler(nil, nil, nil, "s3cret")

	body := teamsBody(t,
		teamsNotification(models.TeamsResourceCallTranscript, "users('user-1')/onlineMeetings('MSo1N2Y5')/transcripts('tr-1')", "s3cret"),
		teamsNotification(models.TeamsResourceCallRecording, "users/user-1/onlineMeetings/MSo1N2Y5/recordings/rec-1", "s3cret"),
		teamsNotification(models.TeamsResourceCallTranscript, "users/user-1/onlineMeetings/MSo1N2Y5/transcripts/tr-2", "forged"),
		teamsNotification("#microsoft.graph.chatMessage", "chats/19:abc/messages/1", "s3cret"),
	)

	events, err := h.Normalize(context.Background(), body)
	require.NoError(t, err)
	require.Len(t, events, 2)

	transcript := events[0]
	assert.Equal(t, models.ActionTranscriptReady, transcript.Action)
	assert.Equal(t, "MSo1N2Y5", transcript.PlatformMeetingID)
	assert.Equal(t, "sub-1:created:users('user-1')/onlineMeetings('MSo1N2Y5')/transcripts('tr-1')", transcript.ExternalEventID)
	require.NotNil(t, transcript.Source)
	assert.Equal(t, models.TranscriptSource{
		Kind:         models.TranscriptSourceGraph,
		OrganizerID:  "user-1",
		ResourceID:   "MSo1N2Y5",
		TranscriptID: "tr-1",
	}, *transcript.Source)

	var stored models.TeamsChangeNotification
	require.NoError(t, json.Unmarshal(transcript.Payload, &stored))
	assert.Equal(t, "sub-1", stored.SubscriptionID)

	recording := events[1]
	assert.Equal(t, models.ActionRecordingReady, recording.Action)
	assert.Nil(t, recording.Source)

	_, err = h.Normalize(context.Background(), []byte(`{"value":[]}`))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestParseTeamsResource(t *testing.T) {
	tests := []struct {
		resource string
		want     teamsResource
	}{
		{
			resource: "users/u1/onlineMeetings/m1/transcripts/t1",
			want:     teamsResource{organizerID: "u1", meetingID: "m1", transcriptID: "t1"},
		},
		{
			resource: "/users('u1')/onlineMeetings('m1')/transcripts('t1')",
			want:     teamsResource{organizerID: "u1", meetingID: "m1", transcriptID: "t1"},
		},
		{
			resource: "communications/onlineMeetings/m2/recordings/r1",
			want:     teamsResource{meetingID: "m2"},
		},
		{
			resource: "chats/19:abc/messages/1",
			want:     teamsResource{},
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseTeamsResource(tt.resource), tt.resource)
	}
}

func TestTeamsEventHandler_HandleEnrichesAndRetrievesInline(t *testing.T) {
	p := newTestPipeline(t)
	resolver := &mocks.MockTeamsMeetingResolver{}
	online := &models.TeamsOnlineMeeting{
		ID:            "MSo1N2Y5",
		Subject:       "Architecture review",
		StartDateTime: time.Date(2025, 3, 4, 13, 0, 0, 0, time.UTC),
		EndDateTime:   time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC),
	}
	online.Participants.Organizer.UPN = "organizer@contoso.com"
	online.Participants.Organizer.Identity.User.DisplayName = "Org Anizer"
	resolver.On("GetOnlineMeeting", mock.Anything, "user-1", "MSo1N2Y5").Return(online, nil).Once()
	p.fetcher.On("FetchTranscript", mock.Anything, mock.MatchedBy(func(s models.TranscriptSource) bool {
		return s.Kind == models.TranscriptSourceGraph && s.OrganizerID == "user-1" && s.ResourceID == "MSo1N2Y5"
	})).Return(sampleVTT, nil).Once()

	h := NewTeamsEventHandler(p.meetings, p.queue, resolver, "")
	events, err := h.Normalize(context.Background(), teamsBody(t,
		teamsNotification(models.TeamsResourceCallTranscript, "users/user-1/onlineMeetings/MSo1N2Y5/transcripts/tr-1", ""),
	))
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := h.Handle(context.Background(), events[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)

	meeting, err := p.meetings.GetMeeting(context.Background(), models.MeetingIDFor(models.PlatformTeams, "MSo1N2Y5"))
	require.NoError(t, err)
	assert.Equal(t, "Architecture review", meeting.Topic)
	assert.Equal(t, "organizer@contoso.com", meeting.HostEmail)
	assert.Equal(t, "Org Anizer", meeting.HostName)
	assert.Equal(t, models.MeetingStatusCompleted, meeting.Status)
	assert.Zero(t, p.jobsKV.Len())

	resolver.AssertExpectations(t)
	p.fetcher.AssertExpectations(t)
}

func TestTeamsEventHandler_EnrichmentIsBestEffort(t *testing.T) {
	p := newTestPipeline(t)
	resolver := &mocks.MockTeamsMeetingResolver{}
	resolver.On("GetOnlineMeeting", mock.Anything, "user-1", "m-9").Return(nil, domain.NewForbiddenError("consent missing"))

	h := NewTeamsEventHandler(p.meetings, p.queue, resolver, "")
	events, err := h.Normalize(context.Background(), teamsBody(t,
		teamsNotification(models.TeamsResourceCallEnded, "users/user-1/onlineMeetings/m-9", ""),
	))
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := h.Handle(context.Background(), events[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)
	resolver.AssertExpectations(t)
}

func meetBody(t *testing.T, eventType, id string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(models.MeetPushEnvelope{
		Message: models.MeetPushMessage{
			Attributes: models.MeetEventAttributes{
				Type:    eventType,
				ID:      id,
				Subject: "//meet.googleapis.com/conferenceRecords/conf-7",
			},
			Data:      raw,
			MessageID: "msg-" + id,
		},
		Subscription: "projects/p/subscriptions/meet",
	})
	require.NoError(t, err)
	return body
}

func TestMeetEventHandler_Normalize(t *testing.T) {
	h := NewMeetEventHandler(nil, nil)

	t.Run("transcript generated", func(t *testing.T) {
		data := map[string]any{
			"transcript": map[string]any{
				"name":            "conferenceRecords/conf-7/transcripts/tr-7",
				"state":           "FILE_GENERATED",
				"docsDestination": map[string]any{"document": "doc-7", "exportUri": "https://docs.google.com/document/d/doc-7"},
			},
		}
		events, err := h.Normalize(context.Background(), meetBody(t, models.MeetEventTranscriptGenerated, "ce-1", data))
		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Equal(t, models.ActionTranscriptReady, event.Action)
		assert.Equal(t, "conf-7", event.PlatformMeetingID)
		assert.Equal(t, "ce-1", event.ExternalEventID)
		require.NotNil(t, event.Source)
		assert.Equal(t, models.TranscriptSourceDriveExport, event.Source.Kind)
		assert.Equal(t, "doc-7", event.Source.DocumentID)
	})

	t.Run("conference ended falls back to the message id", func(t *testing.T) {
		data := map[string]any{
			"conferenceRecord": map[string]any{
				"name":      "conferenceRecords/conf-8",
				"startTime": "2025-03-04T13:00:00Z",
				"endTime":   "2025-03-04T13:30:00Z",
			},
		}
		events, err := h.Normalize(context.Background(), meetBody(t, models.MeetEventConferenceEnded, "", data))
		require.NoError(t, err)
		require.Len(t, events, 1)

		event := events[0]
		assert.Equal(t, models.ActionConferenceEnded, event.Action)
		assert.Equal(t, "conf-8", event.PlatformMeetingID)
		assert.Equal(t, "msg-", event.ExternalEventID)
		require.NotNil(t, event.EndTime)
		assert.Nil(t, event.Source)
	})

	t.Run("recording uses the subject when data has no name", func(t *testing.T) {
		events, err := h.Normalize(context.Background(), meetBody(t, models.MeetEventRecordingGenerated, "ce-2", map[string]any{}))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "conf-7", events[0].PlatformMeetingID)
		assert.Equal(t, models.ActionRecordingReady, events[0].Action)
	})

	t.Run("unknown type is ignored", func(t *testing.T) {
		events, err := h.Normalize(context.Background(), meetBody(t, "google.workspace.meet.participant.v2.joined", "ce-3", map[string]any{}))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("missing message id", func(t *testing.T) {
		_, err := h.Normalize(context.Background(), []byte(`{"message":{"attributes":{"ce-type":"x"}}}`))
		require.Error(t, err)
		assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
	})
}

func TestMeetEventHandler_HandleRetrievesInline(t *testing.T) {
	p := newTestPipeline(t)
	p.fetcher.On("FetchTranscript", mock.Anything, mock.MatchedBy(func(s models.TranscriptSource) bool {
		return s.DocumentID == "doc-7"
	})).Return(sampleVTT, nil).Once()

	h := NewMeetEventHandler(p.meetings, p.queue)
	data := map[string]any{
		"transcript": map[string]any{
			"name":            "conferenceRecords/conf-7/transcripts/tr-7",
			"docsDestination": map[string]any{"document": "doc-7"},
		},
	}
	events, err := h.Normalize(context.Background(), meetBody(t, models.MeetEventTranscriptGenerated, "ce-4", data))
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := p.router.Route(context.Background(), events[0])
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, outcome)

	transcript, err := p.transcripts.GetTranscript(context.Background(), models.MeetingIDFor(models.PlatformMeet, "conf-7"))
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusReady, transcript.Status)
	p.fetcher.AssertExpectations(t)
}

func TestMeetEventHandler_RepeatedTranscriptEventDraftsOnce(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.fetcher.On("FetchTranscript", mock.Anything, mock.Anything).Return(sampleVTT, nil).Once()
	p.drafts.On("GenerateDraft", mock.Anything, mock.Anything).Return(&models.DraftResult{Success: true, DraftID: "draft-7"}, nil).Once()
	p.queue.DraftGenerator = p.drafts

	h := NewMeetEventHandler(p.meetings, p.queue)
	data := map[string]any{
		"transcript": map[string]any{
			"name":            "conferenceRecords/conf-7/transcripts/tr-7",
			"docsDestination": map[string]any{"document": "doc-7"},
		},
	}
	for _, id := range []string{"ce-5", "ce-6"} {
		events, err := h.Normalize(ctx, meetBody(t, models.MeetEventTranscriptGenerated, id, data))
		require.NoError(t, err)
		require.Len(t, events, 1)
		_, err = p.router.Route(ctx, events[0])
		require.NoError(t, err)
	}

	meeting, err := p.meetings.GetMeeting(ctx, models.MeetingIDFor(models.PlatformMeet, "conf-7"))
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusCompleted, meeting.Status)
	p.fetcher.AssertNumberOfCalls(t, "FetchTranscript", 1)
	p.drafts.AssertNumberOfCalls(t, "GenerateDraft", 1)
}

func TestTeamsEventHandler_PermanentFetchErrorFailsMeeting(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.fetcher.On("FetchTranscript", mock.Anything, mock.Anything).Return("", domain.NewForbiddenError("application access policy missing"))

	h := NewTeamsEventHandler(p.meetings, p.queue, nil, "")
	events, err := h.Normalize(ctx, teamsBody(t,
		teamsNotification(models.TeamsResourceCallTranscript, "users/user-1/onlineMeetings/m-40/transcripts/tr-1", ""),
	))
	require.NoError(t, err)
	require.Len(t, events, 1)

	outcome, err := p.router.Route(ctx, events[0])
	require.NoError(t, err)
	assert.NotEqual(t, models.OutcomeFailed, outcome)

	p.fetcher.AssertNumberOfCalls(t, "FetchTranscript", 1)
	assert.Zero(t, p.failuresKV.Len())
	assert.Zero(t, p.jobsKV.Len())

	meeting, err := p.meetings.GetMeeting(ctx, models.MeetingIDFor(models.PlatformTeams, "m-40"))
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusFailed, meeting.Status)
	assert.Contains(t, meeting.LastError, "application access policy missing")

	transcript, err := p.transcripts.GetTranscript(ctx, meeting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TranscriptStatusFailed, transcript.Status)
}

func errTypePtr(t domain.ErrorType) *domain.ErrorType {
	return &t
}
