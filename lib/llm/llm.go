// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm provides a provider-independent client layer for chat
// completion APIs with tool use. The common types in this file form
// the application-side representation of a conversation; [Provider]
// implementations (Anthropic, OpenAI) translate them to and from each
// vendor's wire format.
//
// A model response is a tagged variant: a [Response] whose content
// carries no tool-use blocks is a final text answer, and one that
// carries tool-use blocks is a request to invoke tools. Callers
// inspect the variant with [Response.ToolUses] rather than probing
// the response shape.
package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks messages authored by the user, including the
	// synthetic messages that carry tool results back to the model.
	RoleUser Role = "user"

	// RoleAssistant marks messages authored by the model.
	RoleAssistant Role = "assistant"
)

// ContentBlockType discriminates the variants of a [ContentBlock].
type ContentBlockType string

const (
	// ContentText is a plain text block.
	ContentText ContentBlockType = "text"

	// ContentToolUse is a model request to invoke a tool.
	ContentToolUse ContentBlockType = "tool_use"

	// ContentToolResult is the application's answer to a tool use,
	// correlated by the tool use ID.
	ContentToolResult ContentBlockType = "tool_result"
)

// ContentBlock is one element of a message's content. Exactly one of
// the pointer fields corresponding to Type is set.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string
	ToolUse    *ToolUse
	ToolResult *ToolResult
}

// ToolUse is a model-produced request to invoke a named tool. The ID
// is unique within the conversation and correlates the eventual
// [ToolResult] back to this request.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the application-produced answer to a [ToolUse].
type ToolResult struct {
	// ToolUseID is the ID of the tool use this result answers.
	ToolUseID string

	// Content is the result payload as text.
	Content string

	// IsError marks results that describe a tool failure rather than
	// a successful payload.
	IsError bool
}

// Message is one entry in a conversation transcript.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock returns a tool-use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Type:    ContentToolUse,
		ToolUse: &ToolUse{ID: id, Name: name, Input: input},
	}
}

// ToolResultBlock returns a tool-result content block.
func ToolResultBlock(result ToolResult) ContentBlock {
	return ContentBlock{Type: ContentToolResult, ToolResult: &result}
}

// UserMessage returns a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage returns an assistant message with the given
// content blocks.
func AssistantMessage(content ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage returns the user message that carries tool
// results back to the model. Providers require results for all tool
// uses of the preceding assistant message in a single message.
func ToolResultMessage(results ...ToolResult) Message {
	message := Message{Role: RoleUser}
	for _, result := range results {
		message.Content = append(message.Content, ToolResultBlock(result))
	}
	return message
}

// TextContent returns the concatenation of the message's text blocks.
func (message Message) TextContent() string {
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == ContentText {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// ToolDefinition describes one invocable capability offered to the
// model. The InputSchema is a JSON Schema object naming the tool's
// parameters and which of them are required.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is a provider-independent completion request.
type Request struct {
	// Model is the provider model identifier.
	Model string

	// System is the system prompt. Empty means none.
	System string

	// Messages is the conversation transcript in order.
	Messages []Message

	// Tools is the tool catalog offered to the model for this
	// request. Nil means the model cannot request tool use.
	Tools []ToolDefinition

	// MaxTokens caps the generated output length. Required by the
	// Anthropic API, so callers must always set it.
	MaxTokens int

	// Temperature is the sampling temperature. Nil leaves the
	// provider default; a pointer to zero requests deterministic
	// sampling and is serialized explicitly.
	Temperature *float64

	// TopP is the nucleus sampling threshold. Nil leaves the
	// provider default.
	TopP *float64

	// StopSequences are strings that end generation when produced.
	StopSequences []string
}

// StopReason reports why the model stopped generating.
type StopReason string

const (
	// StopReasonEndTurn means the model finished its answer.
	StopReasonEndTurn StopReason = "end_turn"

	// StopReasonToolUse means the model stopped to request tool
	// invocations and expects results before continuing.
	StopReasonToolUse StopReason = "tool_use"

	// StopReasonMaxTokens means generation hit the MaxTokens cap.
	StopReasonMaxTokens StopReason = "max_tokens"

	// StopReasonStopSequence means generation produced one of the
	// request's stop sequences.
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage reports token consumption for one completion call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a provider-independent completion response.
type Response struct {
	// Content is the ordered list of content blocks the model
	// produced.
	Content []ContentBlock

	// StopReason reports why generation ended.
	StopReason StopReason

	// Model is the model that produced the response, as reported by
	// the provider.
	Model string

	// Usage is the token accounting for this call.
	Usage Usage
}

// ToolUses returns the tool-use blocks of the response, in order. An
// empty result means the response is a final text answer.
func (response *Response) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range response.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// TextContent returns the concatenation of the response's text
// blocks. May be empty when the model produced only tool uses.
func (response *Response) TextContent() string {
	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == ContentText {
			text.WriteString(block.Text)
		}
	}
	return text.String()
}

// AssistantMessage converts the response content into the assistant
// transcript message that providers expect on the next request.
func (response *Response) AssistantMessage() Message {
	return Message{Role: RoleAssistant, Content: response.Content}
}

// StreamEventType discriminates the variants of a [StreamEvent].
type StreamEventType string

const (
	// EventTextDelta carries an incremental piece of text content.
	EventTextDelta StreamEventType = "text_delta"

	// EventContentBlockDone carries a completed content block.
	EventContentBlockDone StreamEventType = "content_block_done"

	// EventDone marks the end of the stream. The accumulated
	// response is complete when this event arrives.
	EventDone StreamEventType = "done"

	// EventPing is a provider keepalive. Carries no data.
	EventPing StreamEventType = "ping"

	// EventError carries a provider-reported mid-stream error.
	EventError StreamEventType = "error"
)

// StreamEvent is one event from a streaming completion call.
type StreamEvent struct {
	Type         StreamEventType
	Text         string
	ContentBlock ContentBlock
	Error        error
}

// Float64 returns a pointer to v, for the optional sampling fields
// of [Request].
func Float64(v float64) *float64 {
	return &v
}
