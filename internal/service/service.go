// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

type Service interface {
	ServiceReady() bool
}

// ServiceConfig is the configuration for the Services.
type ServiceConfig struct {
	// IdempotencyTimeout bounds every lock store call.
	IdempotencyTimeout time.Duration
	// IdempotencyFailOpen lets events through when the lock store cannot be reached.
	// When false the event is recorded as a failure and retried later.
	IdempotencyFailOpen bool

	// RetryLadder is the delay before each webhook retry, the last entry repeats.
	RetryLadder []time.Duration
	// RetryMaxAttempts is the number of failed attempts before a webhook is dead-lettered.
	RetryMaxAttempts int
	// RetryBatchSize caps the failures replayed by one sweep.
	RetryBatchSize int

	// TranscriptJobMaxRetries is the number of retries after the first transcript attempt.
	TranscriptJobMaxRetries int
	TranscriptJobBaseDelay  time.Duration
	TranscriptJobMaxDelay   time.Duration
	// TranscriptJobStaleAfter releases running jobs whose worker disappeared.
	TranscriptJobStaleAfter time.Duration
	TranscriptWorkers       int
	DispatchBatchSize       int
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		IdempotencyTimeout:      2 * time.Second,
		IdempotencyFailOpen:     true,
		RetryLadder:             []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		RetryMaxAttempts:        3,
		RetryBatchSize:          50,
		TranscriptJobMaxRetries: 3,
		TranscriptJobBaseDelay:  30 * time.Second,
		TranscriptJobMaxDelay:   10 * time.Minute,
		TranscriptJobStaleAfter: 15 * time.Minute,
		TranscriptWorkers:       5,
		DispatchBatchSize:       50,
	}
}

// PipelineMetrics is the subset of the metrics collector the services report to.
type PipelineMetrics interface {
	ObserveFailOpen()
	ObserveFailureRecorded(platform models.Platform)
	ObserveDeadLetter(platform models.Platform)
	ObserveAlert(err error)
	ObserveTranscriptJob(platform models.Platform, result string)
	ObserveFetch(platform models.Platform, started time.Time)
	SetFailureStats(stats []models.PlatformFailureStats)
}

type noopMetrics struct{}

func (noopMetrics) ObserveFailOpen() {}
func (noopMetrics) ObserveFailureRecorded(models.Platform) {}
func (noopMetrics) ObserveDeadLetter(models.Platform) {}
func (noopMetrics) ObserveAlert(error) {}
func (noopMetrics) ObserveTranscriptJob(models.Platform, string) {}
func (noopMetrics) ObserveFetch(models.Platform, time.Time) {}
func (noopMetrics) SetFailureStats([]models.PlatformFailureStats) {}

func metricsOrNoop(m PipelineMetrics) PipelineMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// maxCASAttempts bounds optimistic read-modify-write loops against the KV store.
const maxCASAttempts = 5
