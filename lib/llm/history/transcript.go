// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"slices"

	"github.com/bureau-foundation/docent/lib/llm"
)

// DefaultMaxTurns is the retained message bound used when a Transcript
// is created with a non-positive limit: 20 messages, ten exchanged
// user/assistant pairs in a conversation without retrieval cycles.
const DefaultMaxTurns = 20

// Transcript is the ordered conversation log for one session. Messages
// are appended at the tail as the conversation progresses; Prune
// evicts whole turn groups from the head when the retained length
// exceeds the configured bound.
type Transcript struct {
	messages []llm.Message
	maxTurns int
}

// NewTranscript creates an empty Transcript retaining at most maxTurns
// messages. A non-positive maxTurns selects [DefaultMaxTurns].
func NewTranscript(maxTurns int) *Transcript {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Transcript{maxTurns: maxTurns}
}

// Append adds a message at the tail of the transcript.
func (transcript *Transcript) Append(message llm.Message) {
	transcript.messages = append(transcript.messages, message)
}

// Prune evicts turn groups from the oldest end until the transcript
// holds at most the configured maximum number of messages. Eviction is
// group-atomic: a user prompt and the assistant activity it triggered
// (tool calls, tool results, the final answer) leave together, so the
// surviving head is always a user message with text content.
//
// The newest group is never evicted, even if it alone exceeds the
// bound — it is the in-flight exchange. Pruning a transcript already
// within the bound is a no-op.
//
// Returns the number of turn groups evicted.
func (transcript *Transcript) Prune() int {
	if len(transcript.messages) <= transcript.maxTurns {
		return 0
	}

	groups := identifyTurnGroups(transcript.messages)
	if len(groups) <= 1 {
		return 0
	}

	// Find the first group that can serve as the new head: evicting
	// everything before it brings the length within the bound. The
	// newest group is kept unconditionally.
	evictCount := 0
	for evictCount < len(groups)-1 &&
		len(transcript.messages)-groups[evictCount].startIndex > transcript.maxTurns {
		evictCount++
	}
	if evictCount == 0 {
		return 0
	}

	transcript.messages = slices.Clone(transcript.messages[groups[evictCount].startIndex:])
	return evictCount
}

// Messages returns the transcript contents in wire order. The returned
// slice is a copy; appending to it or reordering it does not affect
// the transcript.
func (transcript *Transcript) Messages() []llm.Message {
	return slices.Clone(transcript.messages)
}

// Len returns the number of messages currently retained.
func (transcript *Transcript) Len() int {
	return len(transcript.messages)
}

// MaxTurns returns the configured retained message bound.
func (transcript *Transcript) MaxTurns() int {
	return transcript.maxTurns
}
