// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/linuxfoundation/lfx-v2-meeting-transcript-service/internal/domain/models"
)

func TestNatsMessage(t *testing.T) {
	msg := NewNatsMessage(&nats.Msg{
		Subject: models.TranscriptJobEnqueuedSubject,
		Data:    []byte("payload"),
	})

	assert.Equal(t, models.TranscriptJobEnqueuedSubject, msg.Subject())
	assert.Equal(t, []byte("payload"), msg.Data())
	assert.False(t, msg.HasReply())

	// a message that did not come from a subscription cannot be answered
	bound := NewNatsMessage(&nats.Msg{Subject: "s", Reply: "_INBOX.1"})
	assert.True(t, bound.HasReply())
	assert.Error(t, bound.Respond([]byte("ok")))
}
