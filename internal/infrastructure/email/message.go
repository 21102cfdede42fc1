// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"bytes"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// alertMessage is a multipart/alternative alert mail.
type alertMessage struct {
	From       string
	Recipients []string
	Subject    string
	Text       string
	HTML       string
	// ReferenceID ties the Message-ID to the dead letter entry.
	ReferenceID string
	Date        time.Time
}

// Bytes renders the message with CRLF line endings.
func (m alertMessage) Bytes() []byte {
	boundary := "alt-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	domainPart := "localhost"
	if at := strings.LastIndex(m.From, "@"); at >= 0 && at < len(m.From)-1 {
		domainPart = m.From[at+1:]
	}
	reference := m.ReferenceID
	if reference == "" {
		reference = uuid.NewString()
	}

	var buf bytes.Buffer
	header := func(name, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
	}
	header("From", m.From)
	header("To", strings.Join(m.Recipients, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.UTC().Format(time.RFC1123Z))
	header("Message-ID", fmt.Sprintf("<dead-letter.%s@%s>", reference, domainPart))
	header("X-Priority", "1")
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	buf.WriteString("\r\n")

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", m.Text},
		{"text/html", m.HTML},
	} {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; charset=\"UTF-8\"\r\n\r\n", part.contentType)
		buf.WriteString(part.body)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

// deliver hands the message to the relay in a single SMTP session.
func deliver(config SMTPConfig, recipients []string, message []byte) error {
	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	if err := smtp.SendMail(addr, auth, config.From, recipients, message); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
