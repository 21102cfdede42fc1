// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/base64"
	"strings"

	"github.com/nats-io/nats.go"
)

// Common key prefixes
const (
	KeyPrefixMeeting        = "meeting"
	KeyPrefixTranscript     = "transcript"
	KeyPrefixRawEvent       = "raw-event"
	KeyPrefixWebhookFailure = "failure"
	KeyPrefixDeadLetter     = "dead-letter"
	KeyPrefixTranscriptJob  = "job"
	KeyPrefixLock           = "lock"
)

// KeyBuilder provides utilities for building consistent NATS KV keys.
// Platform identifiers (Zoom meeting uuids, Graph ids) may contain characters NATS does
// not accept in keys, so every segment is base64url encoded and segments are joined with ".".
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with an optional prefix
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
	}
}

// Key builds an encoded key from its segments, e.g. ("raw-event", "zoom", "evt/1==").
func (kb *KeyBuilder) Key(parts ...string) string {
	if kb.prefix != "" {
		parts = append([]string{kb.prefix}, parts...)
	}
	return EncodeKey(parts...)
}

// EncodeKey encodes key segments for NATS KV store.
// Based on https://github.com/ripienaar/encodedkv
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
func EncodeKey(parts ...string) string {
	encoded := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == ">" || part == "*" {
			encoded = append(encoded, part)
			continue
		}
		encoded = append(encoded, base64.RawURLEncoding.EncodeToString([]byte(part)))
	}
	return strings.Join(encoded, ".")
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) ([]string, error) {
	if key == "" {
		return nil, nats.ErrInvalidKey
	}

	var parts []string
	for _, part := range strings.Split(key, ".") {
		decoded, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return nil, err
		}
		parts = append(parts, string(decoded))
	}
	return parts, nil
}
