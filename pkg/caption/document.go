// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package caption

import (
	"regexp"
	"strings"
	"time"
)

// Meet transcript documents mark elapsed time on lines of their own.
var documentTimestamp = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)

// footer lines appended by the exporter
var documentFooters = []string{
	"Transcription ended after",
	"This editable transcript was computer generated",
}

// FromDocument converts a plain text transcript document, as exported for Google Meet,
// into WEBVTT so it can go through Parse. Entries between two timestamp markers share the
// interval between those markers.
func FromDocument(doc string) (string, error) {
	doc = strings.ReplaceAll(strings.TrimPrefix(doc, "\ufeff"), "\r\n", "\n")
	if strings.TrimSpace(doc) == "" {
		return "", ErrEmptyInput
	}

	type entry struct {
		marker  int
		speaker string
		text    string
	}

	var (
		markers []time.Duration
		entries []entry
	)

	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isFooter(line) {
			continue
		}

		if documentTimestamp.MatchString(line) {
			d, err := ParseTimestamp(line)
			if err != nil {
				return "", err
			}
			markers = append(markers, d)
			continue
		}

		// title and attendee lines come before the first marker
		if len(markers) == 0 {
			continue
		}

		speaker, text := splitSpeaker(line)
		if speaker == "" && len(entries) > 0 && entries[len(entries)-1].marker == len(markers)-1 {
			entries[len(entries)-1].text += " " + text
			continue
		}
		entries = append(entries, entry{marker: len(markers) - 1, speaker: speaker, text: text})
	}

	if len(markers) == 0 {
		return "", ErrMalformed
	}

	var b strings.Builder
	b.WriteString(webVTTHeader + "\n")
	for _, e := range entries {
		start := markers[e.marker]
		end := start
		if e.marker+1 < len(markers) {
			end = markers[e.marker+1]
		}

		b.WriteString("\n")
		b.WriteString(FormatTimestamp(start) + " " + timingArrow + " " + FormatTimestamp(end) + "\n")
		if e.speaker != "" {
			b.WriteString(e.speaker + ": ")
		}
		b.WriteString(e.text + "\n")
	}

	return b.String(), nil
}

func isFooter(line string) bool {
	for _, footer := range documentFooters {
		if strings.HasPrefix(line, footer) {
			return true
		}
	}
	return false
}
