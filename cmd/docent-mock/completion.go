// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// deltaChunkRunes is the text delta size for streamed responses.
// Small enough that answers visibly stream in the TUI.
const deltaChunkRunes = 16

// excerptMaxRunes caps the quoted context in scripted answers.
const excerptMaxRunes = 300

// completionHandler serves an Anthropic-style Messages endpoint
// backed by a scripted model. The script is decided per request from
// the message history alone, so the server holds no conversation
// state: a trailing tool result means retrieval already ran and the
// call wants the final answer; any other history gets a tool
// invocation for the user's question (or a direct answer when the
// request offers no tools).
type completionHandler struct {
	logger *slog.Logger
}

// Wire shapes for the server side of the Messages protocol. Only the
// fields the script reads are decoded; generation parameters are
// accepted and ignored.
type messagesRequest struct {
	Model    string            `json:"model"`
	Stream   bool              `json:"stream"`
	Messages []messagesMessage `json:"messages"`
	Tools    []messagesTool    `json:"tools"`
}

type messagesMessage struct {
	Role    string          `json:"role"`
	Content []messagesBlock `json:"content"`
}

type messagesBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

type messagesTool struct {
	Name string `json:"name"`
}

func (handler *completionHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	var decoded messagesRequest
	if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
		handler.sendError(writer, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if len(decoded.Messages) == 0 {
		handler.sendError(writer, http.StatusBadRequest, "invalid_request_error", "messages is required")
		return
	}

	response := script(decoded)
	handler.logger.Info("completion served",
		"model", decoded.Model,
		"messages", len(decoded.Messages),
		"stream", decoded.Stream,
		"stop_reason", response.stopReason,
	)

	if decoded.Stream {
		writeSSE(writer, response)
		return
	}
	writeJSON(writer, handler.logger, response.toWire())
}

func (handler *completionHandler) sendError(writer http.ResponseWriter, status int, errorType, format string, args ...any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	body := map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    errorType,
			"message": fmt.Sprintf(format, args...),
		},
	}
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		handler.logger.Warn("writing error response", "error", err)
	}
}

// scriptedResponse is one scripted reply, rendered to either the JSON
// body or the SSE stream form.
type scriptedResponse struct {
	model        string
	stopReason   string
	inputTokens  int64
	outputTokens int64
	blocks       []responseBlock
}

type responseBlock struct {
	blockType string
	text      string
	id        string
	name      string
	input     json.RawMessage
}

// script decides the reply for one completion call.
func script(request messagesRequest) scriptedResponse {
	last := request.Messages[len(request.Messages)-1]
	if retrieved, ok := lastToolResult(last); ok {
		return answerResponse(request, retrieved)
	}
	question := lastUserText(request.Messages)
	if len(request.Tools) == 0 {
		return directResponse(request, question)
	}
	return toolResponse(request, question)
}

// toolResponse asks for a search carrying the user's question. The
// invocation ID encodes how many results the conversation has already
// seen, so IDs stay distinct across a session's turns.
func toolResponse(request messagesRequest, question string) scriptedResponse {
	input, _ := json.Marshal(map[string]string{"query": question})
	step := countToolResults(request.Messages)
	return scriptedResponse{
		model:        request.Model,
		stopReason:   "tool_use",
		inputTokens:  150,
		outputTokens: 30,
		blocks: []responseBlock{{
			blockType: "tool_use",
			id:        fmt.Sprintf("tc_mock_%02d", step),
			name:      request.Tools[0].Name,
			input:     input,
		}},
	}
}

func answerResponse(request messagesRequest, retrieved string) scriptedResponse {
	return scriptedResponse{
		model:        request.Model,
		stopReason:   "end_turn",
		inputTokens:  200,
		outputTokens: 15,
		blocks: []responseBlock{{
			blockType: "text",
			text:      "According to the documentation: " + excerpt(retrieved),
		}},
	}
}

func directResponse(request messagesRequest, question string) scriptedResponse {
	return scriptedResponse{
		model:        request.Model,
		stopReason:   "end_turn",
		inputTokens:  100,
		outputTokens: 20,
		blocks: []responseBlock{{
			blockType: "text",
			text:      fmt.Sprintf("Mock answer (no tools offered): %s", question),
		}},
	}
}

// lastToolResult returns the content of the newest tool result in the
// message, if any. The wire content field is a JSON value; docent
// sends a JSON string, other clients may send a block array which is
// passed through raw.
func lastToolResult(message messagesMessage) (string, bool) {
	for index := len(message.Content) - 1; index >= 0; index-- {
		block := message.Content[index]
		if block.Type != "tool_result" {
			continue
		}
		var text string
		if json.Unmarshal(block.Content, &text) == nil {
			return text, true
		}
		return string(block.Content), true
	}
	return "", false
}

// lastUserText returns the text of the newest user message that
// carries one. Tool-result-only user messages have no text block and
// are skipped.
func lastUserText(messages []messagesMessage) string {
	for index := len(messages) - 1; index >= 0; index-- {
		message := messages[index]
		if message.Role != "user" {
			continue
		}
		for _, block := range message.Content {
			if block.Type == "text" && block.Text != "" {
				return block.Text
			}
		}
	}
	return ""
}

func countToolResults(messages []messagesMessage) int {
	count := 0
	for _, message := range messages {
		for _, block := range message.Content {
			if block.Type == "tool_result" {
				count++
			}
		}
	}
	return count
}

// excerpt returns the first paragraph of the retrieved context,
// capped so demo answers stay a few lines.
func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if paragraph, _, found := strings.Cut(text, "\n\n"); found {
		text = paragraph
	}
	runes := []rune(text)
	if len(runes) > excerptMaxRunes {
		return string(runes[:excerptMaxRunes]) + "..."
	}
	return text
}

func (response scriptedResponse) toWire() map[string]any {
	blocks := make([]map[string]any, 0, len(response.blocks))
	for _, block := range response.blocks {
		switch block.blockType {
		case "text":
			blocks = append(blocks, map[string]any{"type": "text", "text": block.text})
		case "tool_use":
			blocks = append(blocks, map[string]any{
				"type":  "tool_use",
				"id":    block.id,
				"name":  block.name,
				"input": block.input,
			})
		}
	}
	return map[string]any{
		"id":          "msg_mock",
		"type":        "message",
		"role":        "assistant",
		"model":       response.model,
		"content":     blocks,
		"stop_reason": response.stopReason,
		"usage": map[string]any{
			"input_tokens":  response.inputTokens,
			"output_tokens": response.outputTokens,
		},
	}
}

// writeSSE renders the response as the Messages API event stream:
// message_start, then start/delta/stop for each content block, then
// message_delta with the stop reason and output usage, then
// message_stop. Text arrives as a run of small deltas rather than one
// block so streaming consumers render progressively.
func writeSSE(writer http.ResponseWriter, response scriptedResponse) {
	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")

	flusher, ok := writer.(http.Flusher)
	if !ok {
		http.Error(writer, "streaming not supported", http.StatusInternalServerError)
		return
	}

	writeSSEEvent(writer, flusher, "message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":    "msg_mock",
			"model": response.model,
			"usage": map[string]any{
				"input_tokens":  response.inputTokens,
				"output_tokens": 0,
			},
		},
	})

	for index, block := range response.blocks {
		switch block.blockType {
		case "text":
			writeSSEEvent(writer, flusher, "content_block_start", map[string]any{
				"type":          "content_block_start",
				"index":         index,
				"content_block": map[string]any{"type": "text", "text": ""},
			})
			for _, chunk := range chunkText(block.text, deltaChunkRunes) {
				writeSSEEvent(writer, flusher, "content_block_delta", map[string]any{
					"type":  "content_block_delta",
					"index": index,
					"delta": map[string]any{"type": "text_delta", "text": chunk},
				})
			}

		case "tool_use":
			writeSSEEvent(writer, flusher, "content_block_start", map[string]any{
				"type":  "content_block_start",
				"index": index,
				"content_block": map[string]any{
					"type":  "tool_use",
					"id":    block.id,
					"name":  block.name,
					"input": map[string]any{},
				},
			})
			writeSSEEvent(writer, flusher, "content_block_delta", map[string]any{
				"type":  "content_block_delta",
				"index": index,
				"delta": map[string]any{
					"type":         "input_json_delta",
					"partial_json": string(block.input),
				},
			})
		}

		writeSSEEvent(writer, flusher, "content_block_stop", map[string]any{
			"type":  "content_block_stop",
			"index": index,
		})
	}

	writeSSEEvent(writer, flusher, "message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": response.stopReason},
		"usage": map[string]any{"output_tokens": response.outputTokens},
	})
	writeSSEEvent(writer, flusher, "message_stop", map[string]any{
		"type": "message_stop",
	})
}

// writeSSEEvent writes a single SSE event (event + data line).
func writeSSEEvent(writer http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	payload, _ := json.Marshal(data)
	fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", eventType, payload)
	flusher.Flush()
}

// chunkText splits text into runs of at most size runes.
func chunkText(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
