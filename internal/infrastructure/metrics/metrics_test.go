// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveWebhook(models.PlatformZoom, "created")
	m.ObserveWebhook(models.PlatformZoom, "created")
	m.ObserveWebhook(models.PlatformZoom, "skipped")
	m.ObserveDeadLetter(models.PlatformMeet)
	m.ObserveAlert(nil)
	m.ObserveAlert(errors.New("smtp down"))
	m.ObserveFailOpen()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("zoom", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhooksReceived.WithLabelValues("zoom", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeadLetters.WithLabelValues("meet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsSent.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsSent.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdempotencyFailOpen))
}

func TestMetrics_SetFailureStats(t *testing.T) {
	m := New()
	m.SetFailureStats([]models.PlatformFailureStats{
		{Platform: models.PlatformTeams, Total: 4, Pending: 2, Failed: 3, DeadLettered: 1},
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(m.WebhookFailureRecords.WithLabelValues("teams", "total")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookFailureRecords.WithLabelValues("teams", "dead_letter")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveFetch(models.PlatformZoom, time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "meeting_transcript_transcript_fetch_duration_seconds")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook(models.PlatformZoom, "created")
		m.ObserveTranscriptJob(models.PlatformZoom, "succeeded")
		m.SetFailureStats([]models.PlatformFailureStats{{Platform: models.PlatformZoom}})
	})
	assert.NotNil(t, m.Handler())
}
