// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package caption parses timestamped, speaker-tagged caption files into speaker segments.
package caption

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnknownSpeaker labels cues that carry no speaker.
const UnknownSpeaker = "Unknown"

const (
	webVTTHeader   = "WEBVTT"
	timingArrow    = "-->"
	maxSpeakerName = 64
)

var (
	// ErrEmptyInput is returned when there is nothing to parse.
	ErrEmptyInput = errors.New("caption: empty input")
	// ErrMalformed is returned when the input is not a caption file.
	ErrMalformed = errors.New("caption: malformed input")
)

// Cue is a single timed caption unit.
type Cue struct {
	ID      string
	Start   time.Duration
	End     time.Duration
	Speaker string
	Text    string
}

// Segment is a run of consecutive cues from the same speaker.
type Segment struct {
	Speaker string
	Text    string
	Start   time.Duration
	End     time.Duration
}

// Result is the normalized form of a caption file.
type Result struct {
	Content   string
	Segments  []Segment
	WordCount int
	CueCount  int
}

// Parse converts WEBVTT (or SRT style) caption text into a Result.
func Parse(raw string) (*Result, error) {
	cues, err := ParseCues(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(cues), nil
}

// ParseCues returns the cues of a caption file in file order.
func ParseCues(raw string) ([]Cue, error) {
	text := strings.TrimPrefix(raw, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	hasHeader := strings.HasPrefix(strings.TrimSpace(text), webVTTHeader)

	var cues []Cue
	for _, block := range strings.Split(text, "\n\n") {
		lines := nonEmptyLines(block)
		if len(lines) == 0 {
			continue
		}

		timing := -1
		for i, line := range lines {
			if strings.Contains(line, timingArrow) {
				timing = i
				break
			}
		}
		// header, NOTE, STYLE and REGION blocks carry no timing line
		if timing < 0 {
			continue
		}

		start, end, err := parseTiming(lines[timing])
		if err != nil {
			return nil, err
		}

		cue := Cue{Start: start, End: end}
		if timing > 0 {
			cue.ID = lines[timing-1]
		}
		cue.Speaker, cue.Text = splitSpeaker(strings.Join(lines[timing+1:], " "))
		if cue.Text == "" {
			continue
		}
		cues = append(cues, cue)
	}

	if len(cues) == 0 && !hasHeader {
		return nil, ErrMalformed
	}
	return cues, nil
}

// Normalize merges consecutive same-speaker cues into segments and derives the full text.
func Normalize(cues []Cue) *Result {
	result := &Result{CueCount: len(cues)}

	for _, cue := range cues {
		speaker := cue.Speaker
		if speaker == "" {
			speaker = UnknownSpeaker
		}

		if n := len(result.Segments); n > 0 && result.Segments[n-1].Speaker == speaker {
			last := &result.Segments[n-1]
			last.Text += " " + cue.Text
			last.Start = min(last.Start, cue.Start)
			last.End = max(last.End, cue.End)
			continue
		}

		result.Segments = append(result.Segments, Segment{
			Speaker: speaker,
			Text:    cue.Text,
			Start:   cue.Start,
			End:     cue.End,
		})
	}

	lines := make([]string, 0, len(result.Segments))
	for _, segment := range result.Segments {
		lines = append(lines, segment.Speaker+": "+segment.Text)
		result.WordCount += len(strings.Fields(segment.Text))
	}
	result.Content = strings.Join(lines, "\n")

	return result
}

func nonEmptyLines(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseTiming reads "00:00:01.000 --> 00:00:02.500 align:start".
func parseTiming(line string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(line, timingArrow, 2)
	startField := strings.TrimSpace(parts[0])
	endFields := strings.Fields(parts[1])
	if startField == "" || len(endFields) == 0 {
		return 0, 0, fmt.Errorf("%w: timing line %q", ErrMalformed, line)
	}

	start, err := ParseTimestamp(startField)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		end = start
	}
	return start, end, nil
}

// ParseTimestamp parses "HH:MM:SS.mmm", "MM:SS.mmm" and the SRT "HH:MM:SS,mmm" form.
func ParseTimestamp(value string) (time.Duration, error) {
	value = strings.Replace(value, ",", ".", 1)

	var millis int
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		frac := value[dot+1:]
		value = value[:dot]
		if frac == "" || len(frac) > 3 {
			return 0, fmt.Errorf("%w: timestamp fraction %q", ErrMalformed, frac)
		}
		frac += strings.Repeat("0", 3-len(frac))
		n, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("%w: timestamp fraction %q", ErrMalformed, frac)
		}
		millis = n
	}

	fields := strings.Split(value, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: timestamp %q", ErrMalformed, value)
	}

	var total time.Duration
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: timestamp %q", ErrMalformed, value)
		}
		total = total*60 + time.Duration(n)
	}

	return total*time.Second + time.Duration(millis)*time.Millisecond, nil
}

// FormatTimestamp renders d as a WEBVTT timestamp.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}

// splitSpeaker extracts the speaker from "<v Name>text</v>" or "Name: text" cue payloads.
func splitSpeaker(payload string) (string, string) {
	payload = strings.TrimSpace(payload)

	var speaker string
	if strings.HasPrefix(payload, "<v") {
		if end := strings.IndexByte(payload, '>'); end > 0 {
			tag := payload[2:end]
			// voice tags may carry classes: <v.loud Name>
			if i := strings.IndexByte(tag, ' '); i >= 0 {
				speaker = strings.TrimSpace(tag[i+1:])
			}
			payload = payload[end+1:]
		}
	}

	payload = cleanText(payload)

	if speaker == "" {
		if i := strings.Index(payload, ": "); i > 0 && i <= maxSpeakerName {
			candidate := payload[:i]
			if !strings.Contains(candidate, "://") {
				speaker = candidate
				payload = strings.TrimSpace(payload[i+2:])
			}
		}
	}

	return cleanText(speaker), payload
}

var entities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ", "&lrm;", "", "&rlm;", "")

// cleanText drops markup tags and collapses whitespace.
func cleanText(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(entities.Replace(b.String())), " ")
}
