// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/bureau-foundation/docent/lib/assistant"
	"github.com/bureau-foundation/docent/lib/retrieval"
)

// Event names, one per orchestration step.
const (
	eventTurnStart  = "turn_start"
	eventToolCall   = "tool_call"
	eventToolResult = "tool_result"
	eventAnswer     = "answer"
	eventError      = "error"
)

// eventLog writes one JSON object per line for each step of the
// orchestration cycle, alongside the human-facing output. A nil
// *eventLog discards everything, so callers never guard emission.
type eventLog struct {
	encoder *json.Encoder
	now     func() time.Time
}

func newEventLog(output io.Writer) *eventLog {
	return &eventLog{encoder: json.NewEncoder(output), now: time.Now}
}

type turnStartEvent struct {
	Event    string    `json:"event"`
	Time     time.Time `json:"time"`
	Question string    `json:"question"`
}

type toolCallEvent struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	Query string    `json:"query"`
}

type toolResultEvent struct {
	Event     string    `json:"event"`
	Time      time.Time `json:"time"`
	Query     string    `json:"query"`
	Documents int       `json:"documents"`
}

type answerEvent struct {
	Event           string    `json:"event"`
	Time            time.Time `json:"time"`
	Text            string    `json:"text"`
	Queries         []string  `json:"queries,omitempty"`
	Documents       int       `json:"documents"`
	InputTokens     int64     `json:"input_tokens"`
	OutputTokens    int64     `json:"output_tokens"`
	CompletionCalls int       `json:"completion_calls"`
}

type errorEvent struct {
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	Error string    `json:"error"`
}

func (log *eventLog) turnStart(question string) {
	if log == nil {
		return
	}
	log.emit(turnStartEvent{Event: eventTurnStart, Time: log.now().UTC(), Question: question})
}

func (log *eventLog) answer(answer *assistant.Answer) {
	if log == nil {
		return
	}
	log.emit(answerEvent{
		Event:           eventAnswer,
		Time:            log.now().UTC(),
		Text:            answer.Text,
		Queries:         answer.Queries,
		Documents:       len(answer.Documents),
		InputTokens:     answer.Usage.InputTokens,
		OutputTokens:    answer.Usage.OutputTokens,
		CompletionCalls: answer.CompletionCalls,
	})
}

func (log *eventLog) turnError(err error) {
	if log == nil {
		return
	}
	log.emit(errorEvent{Event: eventError, Time: log.now().UTC(), Error: err.Error()})
}

// retrievalHook adapts the log to the orchestrator's dispatch
// callback. Nil when the log is nil, so an event-less run configures
// no callback at all.
func (log *eventLog) retrievalHook() func(query string, documents []retrieval.Document) {
	if log == nil {
		return nil
	}
	return func(query string, documents []retrieval.Document) {
		log.emit(toolCallEvent{Event: eventToolCall, Time: log.now().UTC(), Query: query})
		log.emit(toolResultEvent{
			Event:     eventToolResult,
			Time:      log.now().UTC(),
			Query:     query,
			Documents: len(documents),
		})
	}
}

func (log *eventLog) emit(event any) {
	// A failed stderr write leaves nothing to report to.
	_ = log.encoder.Encode(event)
}
