// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/pkg/utils"
)

var teamsActions = map[string]models.EventAction{
	models.TeamsResourceCallEnded:      models.ActionConferenceEnded,
	models.TeamsResourceCallRecording:  models.ActionRecordingReady,
	models.TeamsResourceCallTranscript: models.ActionTranscriptReady,
}

// TeamsEventHandler handles Microsoft Graph change notifications. Graph only sends
// transcript notifications once the content exists, so retrieval runs inline.
type TeamsEventHandler struct {
	eventProcessor
	// Resolver is optional; without it meetings keep only what the notification carries.
	Resolver domain.TeamsMeetingResolver
	// ClientState is the secret set on the Graph subscriptions. Empty disables the check.
	ClientState string
	validate    *validator.Validate
	now         func() time.Time
}

var _ PlatformHandler = (*TeamsEventHandler)(nil)

// NewTeamsEventHandler creates the Teams handler.
func NewTeamsEventHandler(meetings *MeetingService, queue *TranscriptQueue, resolver domain.TeamsMeetingResolver, clientState string) *TeamsEventHandler {
	return &TeamsEventHandler{
		eventProcessor: eventProcessor{meetings: meetings, queue: queue, inline: true},
		Resolver:       resolver,
		ClientState:    clientState,
		validate:       newPayloadValidator(),
		now:            time.Now,
	}
}

// Platform returns teams.
func (h *TeamsEventHandler) Platform() models.Platform {
	return models.PlatformTeams
}

// Normalize converts a notification collection into one event per notification.
func (h *TeamsEventHandler) Normalize(ctx context.Context, body []byte) ([]*models.WebhookEvent, error) {
	var collection models.TeamsNotificationCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, domain.NewValidationError("invalid teams notification payload", domain.ErrUnmarshal, err)
	}
	if err := h.validate.StructCtx(ctx, collection); err != nil {
		return nil, domain.NewValidationError("invalid teams notification payload", err)
	}

	events := make([]*models.WebhookEvent, 0, len(collection.Value))
	for _, notification := range collection.Value {
		if h.ClientState != "" && subtle.ConstantTimeCompare([]byte(notification.ClientState), []byte(h.ClientState)) != 1 {
			slog.WarnContext(ctx, "teams notification with unexpected client state dropped",
				"subscription_id", notification.SubscriptionID,
			)
			continue
		}

		event, err := h.normalizeNotification(notification)
		if err != nil {
			return nil, err
		}
		if event == nil {
			slog.DebugContext(ctx, "ignoring teams notification",
				"resource_type", notification.ResourceData.ODataType,
				"resource", notification.Resource,
			)
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func (h *TeamsEventHandler) normalizeNotification(notification models.TeamsChangeNotification) (*models.WebhookEvent, error) {
	action, ok := teamsActions[notification.ResourceData.ODataType]
	if !ok {
		return nil, nil
	}
	resource := parseTeamsResource(utils.CoalesceString(notification.Resource, notification.ResourceData.ODataID))
	if resource.meetingID == "" {
		return nil, nil
	}

	// stored per notification so a replay only re-runs this one
	payload, err := json.Marshal(notification)
	if err != nil {
		return nil, domain.NewInternalError("failed to encode teams notification", err)
	}

	event := &models.WebhookEvent{
		Platform:          models.PlatformTeams,
		EventType:         notification.ResourceData.ODataType,
		Action:            action,
		ExternalEventID:   notification.SubscriptionID + ":" + notification.ChangeType + ":" + notification.Resource,
		PlatformMeetingID: resource.meetingID,
		ReceivedAt:        h.now().UTC(),
		Payload:           payload,
	}
	if action == models.ActionTranscriptReady && resource.organizerID != "" {
		event.Source = &models.TranscriptSource{
			Kind:         models.TranscriptSourceGraph,
			OrganizerID:  resource.organizerID,
			ResourceID:   resource.meetingID,
			TranscriptID: utils.CoalesceString(resource.transcriptID, notification.ResourceData.ID),
		}
	}
	return event, nil
}

// Handle enriches the event with the online meeting details, then upserts the meeting
// and downloads the transcript.
func (h *TeamsEventHandler) Handle(ctx context.Context, event *models.WebhookEvent) (models.RouteOutcome, error) {
	h.enrich(ctx, event)
	return h.process(ctx, event)
}

// enrich is best effort: a meeting without topic or host is still processed.
func (h *TeamsEventHandler) enrich(ctx context.Context, event *models.WebhookEvent) {
	if h.Resolver == nil {
		return
	}

	organizerID := ""
	if event.Source != nil {
		organizerID = event.Source.OrganizerID
	} else {
		var notification models.TeamsChangeNotification
		if err := json.Unmarshal(event.Payload, &notification); err == nil {
			organizerID = parseTeamsResource(notification.Resource).organizerID
		}
	}
	if organizerID == "" {
		return
	}

	meeting, err := h.Resolver.GetOnlineMeeting(ctx, organizerID, event.PlatformMeetingID)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve teams online meeting", logging.ErrKey, err,
			"organizer_id", organizerID,
		)
		return
	}

	event.Topic = utils.CoalesceString(event.Topic, meeting.Subject)
	organizer := meeting.Participants.Organizer
	if strings.Contains(organizer.UPN, "@") {
		event.HostEmail = utils.CoalesceString(event.HostEmail, organizer.UPN)
	}
	event.HostName = utils.CoalesceString(event.HostName, organizer.Identity.User.DisplayName)
	if event.StartTime == nil && !meeting.StartDateTime.IsZero() {
		event.StartTime = utils.TimePtr(meeting.StartDateTime.UTC())
	}
	if event.EndTime == nil && !meeting.EndDateTime.IsZero() {
		event.EndTime = utils.TimePtr(meeting.EndDateTime.UTC())
	}
}

type teamsResource struct {
	organizerID  string
	meetingID    string
	transcriptID string
}

// parseTeamsResource reads the ids out of a Graph resource path. Both the segment form
// "users/u/onlineMeetings/m/transcripts/t" and the key form
// "users('u')/onlineMeetings('m')/transcripts('t')" are accepted.
func parseTeamsResource(resource string) teamsResource {
	normalized := strings.NewReplacer("('", "/", "')", "", "(", "/", ")", "").Replace(strings.TrimPrefix(resource, "/"))
	parts := strings.Split(normalized, "/")

	var out teamsResource
	for i := 0; i+1 < len(parts); i++ {
		switch strings.ToLower(parts[i]) {
		case "users":
			out.organizerID = parts[i+1]
		case "onlinemeetings":
			out.meetingID = parts[i+1]
		case "transcripts":
			out.transcriptID = parts[i+1]
		}
	}
	return out
}
