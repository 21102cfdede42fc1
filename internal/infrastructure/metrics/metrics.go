// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

const namespace = "meeting_transcript"

// Metrics holds the Prometheus metrics of the pipeline. A nil *Metrics is valid and
// records nothing, which keeps services usable in tests without a registry.
type Metrics struct {
	registry *prometheus.Registry

	WebhooksReceived      *prometheus.CounterVec
	WebhookAuthFailures   *prometheus.CounterVec
	WebhookFailures       *prometheus.CounterVec
	DeadLetters           *prometheus.CounterVec
	AlertsSent            *prometheus.CounterVec
	IdempotencyFailOpen   prometheus.Counter
	TranscriptJobs        *prometheus.CounterVec
	TranscriptFetchTime   *prometheus.HistogramVec
	WebhookFailureRecords *prometheus.GaugeVec
}

// New creates the pipeline metrics on a dedicated registry that also carries the
// process and Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		WebhooksReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Webhook deliveries by platform and routing outcome",
		}, []string{"platform", "outcome"}),
		WebhookAuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_auth_failures_total",
			Help:      "Webhook deliveries rejected by authentication",
		}, []string{"platform"}),
		WebhookFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failures_total",
			Help:      "Handler failures recorded for retry",
		}, []string{"platform"}),
		DeadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Failures moved to the dead letter queue",
		}, []string{"platform"}),
		AlertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_alerts_total",
			Help:      "Dead letter alerts by delivery result",
		}, []string{"result"}),
		IdempotencyFailOpen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_fail_open_total",
			Help:      "Idempotency checks that could not reach the lock store",
		}),
		TranscriptJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_jobs_total",
			Help:      "Transcript job runs by platform and result",
		}, []string{"platform", "result"}),
		TranscriptFetchTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_fetch_duration_seconds",
			Help:      "Time spent downloading a transcript",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		WebhookFailureRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "webhook_failure_records",
			Help:      "Stored webhook failures by platform and state, refreshed by the retry sweep",
		}, []string{"platform", "state"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveWebhook(platform models.Platform, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksReceived.WithLabelValues(string(platform), outcome).Inc()
}

func (m *Metrics) ObserveAuthFailure(platform models.Platform) {
	if m == nil {
		return
	}
	m.WebhookAuthFailures.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) ObserveFailureRecorded(platform models.Platform) {
	if m == nil {
		return
	}
	m.WebhookFailures.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) ObserveDeadLetter(platform models.Platform) {
	if m == nil {
		return
	}
	m.DeadLetters.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) ObserveAlert(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "error"
	}
	m.AlertsSent.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFailOpen() {
	if m == nil {
		return
	}
	m.IdempotencyFailOpen.Inc()
}

func (m *Metrics) ObserveTranscriptJob(platform models.Platform, result string) {
	if m == nil {
		return
	}
	m.TranscriptJobs.WithLabelValues(string(platform), result).Inc()
}

func (m *Metrics) ObserveFetch(platform models.Platform, started time.Time) {
	if m == nil {
		return
	}
	m.TranscriptFetchTime.WithLabelValues(string(platform)).Observe(time.Since(started).Seconds())
}

// SetFailureStats replaces the failure gauges with a fresh snapshot
func (m *Metrics) SetFailureStats(stats []models.PlatformFailureStats) {
	if m == nil {
		return
	}
	for _, s := range stats {
		platform := string(s.Platform)
		m.WebhookFailureRecords.WithLabelValues(platform, "total").Set(float64(s.Total))
		m.WebhookFailureRecords.WithLabelValues(platform, "pending").Set(float64(s.Pending))
		m.WebhookFailureRecords.WithLabelValues(platform, "failed").Set(float64(s.Failed))
		m.WebhookFailureRecords.WithLabelValues(platform, "dead_letter").Set(float64(s.DeadLettered))
		m.WebhookFailureRecords.WithLabelValues(platform, "completed").Set(float64(s.Completed))
	}
}
