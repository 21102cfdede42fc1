// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// NATS Key-Value store bucket names
const (
	KVStoreNameMeetings         = "meeting-transcript-meetings"
	KVStoreNameTranscripts      = "meeting-transcript-transcripts"
	KVStoreNameRawEvents        = "meeting-transcript-raw-events"
	KVStoreNameWebhookFailures  = "meeting-transcript-webhook-failures"
	KVStoreNameDeadLetters      = "meeting-transcript-dead-letters"
	KVStoreNameTranscriptJobs   = "meeting-transcript-jobs"
	KVStoreNameIdempotencyLocks = "meeting-transcript-idempotency-locks"
)

// NATS Object Store names
const (
	ObjectStoreNameTranscriptCaptions = "meeting-transcript-captions"
)

// INatsKeyValue is the subset of jetstream.KeyValue the repositories use.
type INatsKeyValue interface {
	ListKeys(context.Context, ...jetstream.WatchOpt) (jetstream.KeyLister, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(context.Context, string, []byte) (uint64, error)
	Create(context.Context, string, []byte, ...jetstream.KVCreateOpt) (uint64, error)
	Update(context.Context, string, []byte, uint64) (uint64, error)
	Delete(context.Context, string, ...jetstream.KVDeleteOpt) error
}
