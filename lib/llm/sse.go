// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"io"
	"strings"
)

// SSEEvent is a single Server-Sent Event parsed from a stream.
type SSEEvent struct {
	// Type is the event type from the "event:" field. Empty when the
	// event carried no explicit type.
	Type string

	// Data is the event payload, assembled from the event's "data:"
	// lines. Multiple data lines join with newlines per the SSE
	// specification.
	Data string
}

// SSEScanner reads Server-Sent Events from an [io.Reader]. Events are
// delimited by blank lines; "data:" lines carry the payload and
// "event:" lines the type. Comment lines (leading ":") and unknown
// fields are ignored.
//
//	scanner := NewSSEScanner(reader)
//	for scanner.Next() {
//	    event := scanner.Event()
//	    ...
//	}
//	if err := scanner.Err(); err != nil {
//	    ...
//	}
type SSEScanner struct {
	lines   *bufio.Scanner
	current SSEEvent
	err     error
	eof     bool
}

// NewSSEScanner creates a scanner that reads SSE events from reader.
func NewSSEScanner(reader io.Reader) *SSEScanner {
	lines := bufio.NewScanner(reader)
	// Completion deltas are small, but tool input JSON can arrive as
	// one large data line. Allow lines up to 1 MiB.
	lines.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &SSEScanner{lines: lines}
}

// Next advances to the next event. Returns false at end of stream or
// on error; call [SSEScanner.Err] to distinguish.
func (scanner *SSEScanner) Next() bool {
	if scanner.eof || scanner.err != nil {
		return false
	}

	var dataLines []string
	var eventType string
	haveData := false

	flush := func() bool {
		if !haveData {
			return false
		}
		scanner.current = SSEEvent{
			Type: eventType,
			Data: strings.Join(dataLines, "\n"),
		}
		return true
	}

	for scanner.lines.Scan() {
		line := strings.TrimSuffix(scanner.lines.Text(), "\r")

		// Blank line ends the event.
		if line == "" {
			if flush() {
				return true
			}
			// Empty block: reset and keep reading.
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			// Per spec, exactly one leading space is stripped.
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			haveData = true
		case "event":
			eventType = value
		default:
			// "id", "retry", and unknown fields are ignored.
		}
	}

	scanner.eof = true
	if err := scanner.lines.Err(); err != nil {
		scanner.err = err
		return false
	}

	// A final event without a trailing blank line is still an event.
	return flush()
}

// Event returns the most recently parsed event. Valid only after
// [SSEScanner.Next] returned true.
func (scanner *SSEScanner) Event() SSEEvent {
	return scanner.current
}

// Err returns the first error encountered during scanning, or nil if
// the stream ended cleanly.
func (scanner *SSEScanner) Err() error {
	return scanner.err
}
