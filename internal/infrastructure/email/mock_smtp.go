// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ReceivedMail is a message accepted by MockSMTPServer.
type ReceivedMail struct {
	From       string
	Recipients []string
	Data       string
}

// MockSMTPServer is a minimal SMTP server for tests. It accepts every message unless
// recipients are rejected, in which case RCPT TO is answered with 550.
type MockSMTPServer struct {
	listener net.Listener

	mu       sync.Mutex
	messages []ReceivedMail
	reject   bool
}

// NewMockSMTPServer starts a mock SMTP server on a random local port
func NewMockSMTPServer(t *testing.T) *MockSMTPServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &MockSMTPServer{listener: listener}
	t.Cleanup(func() { _ = listener.Close() })

	go server.serve()
	return server
}

// Config returns an SMTPConfig pointing at the server
func (s *MockSMTPServer) Config(recipients ...string) SMTPConfig {
	host, portStr, _ := net.SplitHostPort(s.listener.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return SMTPConfig{
		Host:       host,
		Port:       port,
		From:       "alerts@example.com",
		Recipients: recipients,
	}
}

// RejectRecipients makes the server refuse every recipient
func (s *MockSMTPServer) RejectRecipients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = true
}

// Messages returns the messages received so far
func (s *MockSMTPServer) Messages() []ReceivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedMail(nil), s.messages...)
}

func (s *MockSMTPServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // Server closed
		}
		go s.handleConnection(conn)
	}
}

func (s *MockSMTPServer) handleConnection(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	reader := bufio.NewReader(conn)
	reply := func(line string) {
		_, _ = conn.Write([]byte(line + "\r\n"))
	}

	reply("220 localhost SMTP ready")

	var current ReceivedMail
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		command := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(command, "EHLO"), strings.HasPrefix(command, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(command, "MAIL FROM:"):
			current = ReceivedMail{From: strings.Trim(line[len("MAIL FROM:"):], "<> ")}
			reply("250 OK")
		case strings.HasPrefix(command, "RCPT TO:"):
			s.mu.Lock()
			reject := s.reject
			s.mu.Unlock()
			if reject {
				reply("550 Mailbox unavailable")
				continue
			}
			current.Recipients = append(current.Recipients, strings.Trim(line[len("RCPT TO:"):], "<> "))
			reply("250 OK")
		case command == "DATA":
			reply("354 Start mail input; end with <CRLF>.<CRLF>")
			var data strings.Builder
			for {
				dataLine, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if dataLine == ".\r\n" {
					break
				}
				data.WriteString(dataLine)
			}
			current.Data = data.String()
			s.mu.Lock()
			s.messages = append(s.messages, current)
			s.mu.Unlock()
			reply("250 OK")
		case command == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}
