// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertMessage_Bytes(t *testing.T) {
	message := alertMessage{
		From:        "alerts@example.com",
		Recipients:  []string{"ops@example.com", "oncall@example.com"},
		Subject:     "Dead-lettered webhook: zoom meeting.ended",
		Text:        "Alert",
		HTML:        "<h1>Alert</h1>",
		ReferenceID: "f-1",
		Date:        time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC),
	}

	rendered := string(message.Bytes())
	assert.Contains(t, rendered, "From: alerts@example.com\r\n")
	assert.Contains(t, rendered, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, rendered, "Subject: Dead-lettered webhook: zoom meeting.ended\r\n")
	assert.Contains(t, rendered, "Date: Tue, 04 Mar 2025 15:00:00 +0000\r\n")
	assert.Contains(t, rendered, "Message-ID: <dead-letter.f-1@example.com>\r\n")
	assert.Contains(t, rendered, "Content-Type: multipart/alternative")
	assert.Contains(t, rendered, "Content-Type: text/plain")
	assert.Contains(t, rendered, "Content-Type: text/html")
	assert.Contains(t, rendered, "<h1>Alert</h1>")

	t.Run("non ascii subject is encoded", func(t *testing.T) {
		message.Subject = "Réunion échouée"
		assert.Contains(t, string(message.Bytes()), "Subject: =?utf-8?q?")
	})
}

func TestDeliver(t *testing.T) {
	t.Run("delivers to every recipient", func(t *testing.T) {
		server := NewMockSMTPServer(t)
		config := server.Config("ops@example.com", "oncall@example.com")

		require.NoError(t, deliver(config, config.Recipients, []byte("Subject: hi\r\n\r\nbody\r\n")))

		messages := server.Messages()
		require.Len(t, messages, 1)
		assert.Equal(t, "alerts@example.com", messages[0].From)
		assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, messages[0].Recipients)
		assert.Contains(t, messages[0].Data, "body")
	})

	t.Run("rejected recipient", func(t *testing.T) {
		server := NewMockSMTPServer(t)
		server.RejectRecipients()
		config := server.Config("ops@example.com")

		err := deliver(config, config.Recipients, []byte("body"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send email")
		assert.Empty(t, server.Messages())
	})

	t.Run("connection error", func(t *testing.T) {
		config := SMTPConfig{Host: "127.0.0.1", Port: 1, From: "alerts@example.com"}

		err := deliver(config, []string{"ops@example.com"}, []byte("body"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send email")
	})
}
