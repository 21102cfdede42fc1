// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/service"
)

type mockDispatcher struct {
	mock.Mock
	ready bool
}

func (m *mockDispatcher) Dispatch(ctx context.Context) (service.DispatchResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(service.DispatchResult), args.Error(1)
}

func (m *mockDispatcher) ServiceReady() bool { return m.ready }

func encodeNotification(t *testing.T, notification models.TranscriptJobNotification) []byte {
	t.Helper()
	data, err := msgpack.Marshal(notification)
	require.NoError(t, err)
	return data
}

func TestTranscriptJobHandler_HandleMessage(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		subject      string
		data         func(t *testing.T) []byte
		hasReply     bool
		wantDispatch bool
		wantReply    func(t *testing.T, data []byte)
	}{
		{
			name:    "due job triggers a dispatch",
			subject: models.TranscriptJobEnqueuedSubject,
			data: func(t *testing.T) []byte {
				return encodeNotification(t, models.TranscriptJobNotification{JobID: "j-1", MeetingID: "m-1", Platform: models.PlatformZoom, NextRunAt: now})
			},
			hasReply:     true,
			wantDispatch: true,
			wantReply: func(t *testing.T, data []byte) {
				var result service.DispatchResult
				require.NoError(t, json.Unmarshal(data, &result))
				assert.Equal(t, service.DispatchResult{Claimed: 1, Succeeded: 1}, result)
			},
		},
		{
			name:    "future job is left to the periodic dispatch",
			subject: models.TranscriptJobEnqueuedSubject,
			data: func(t *testing.T) []byte {
				return encodeNotification(t, models.TranscriptJobNotification{JobID: "j-2", MeetingID: "m-2", NextRunAt: now.Add(time.Minute)})
			},
			hasReply: true,
			wantReply: func(t *testing.T, data []byte) {
				assert.Nil(t, data)
			},
		},
		{
			name:    "malformed notification",
			subject: models.TranscriptJobEnqueuedSubject,
			data: func(*testing.T) []byte {
				return []byte("not msgpack")
			},
			hasReply: true,
			wantReply: func(t *testing.T, data []byte) {
				assert.Nil(t, data)
			},
		},
		{
			name:    "unknown subject",
			subject: "lfx.meeting-transcript.unknown",
			data: func(*testing.T) []byte {
				return nil
			},
			hasReply: true,
			wantReply: func(t *testing.T, data []byte) {
				assert.Nil(t, data)
			},
		},
		{
			name:    "no reply expected",
			subject: models.TranscriptJobEnqueuedSubject,
			data: func(t *testing.T) []byte {
				return encodeNotification(t, models.TranscriptJobNotification{JobID: "j-3", MeetingID: "m-3", NextRunAt: now.Add(-time.Second)})
			},
			wantDispatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &mockDispatcher{ready: true}
			if tt.wantDispatch {
				dispatcher.On("Dispatch", mock.Anything).Return(service.DispatchResult{Claimed: 1, Succeeded: 1}, nil).Once()
			}
			handler := NewTranscriptJobHandler(dispatcher)
			handler.now = func() time.Time { return now }

			msg := mocks.NewMockMessage(tt.data(t), tt.subject)
			msg.On("HasReply").Return(tt.hasReply)
			var reply []byte
			if tt.hasReply {
				msg.On("Respond", mock.Anything).Run(func(args mock.Arguments) {
					reply, _ = args.Get(0).([]byte)
				}).Return(nil).Once()
			}

			handler.HandleMessage(context.Background(), msg)

			dispatcher.AssertExpectations(t)
			if !tt.wantDispatch {
				dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
			}
			msg.AssertExpectations(t)
			if tt.wantReply != nil {
				tt.wantReply(t, reply)
			}
		})
	}
}

func TestTranscriptJobHandler_NotReady(t *testing.T) {
	dispatcher := &mockDispatcher{}
	handler := NewTranscriptJobHandler(dispatcher)
	assert.False(t, handler.HandlerReady())

	msg := mocks.NewMockMessage(nil, models.TranscriptJobEnqueuedSubject)
	_, err := handler.HandleTranscriptJobEnqueued(context.Background(), msg)
	require.Error(t, err)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything)
}
