// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/docent/lib/llm"
	"github.com/bureau-foundation/docent/lib/llm/history"
	"github.com/bureau-foundation/docent/lib/retrieval"
)

// Failure conditions surfaced by [Orchestrator.Respond]. Wrapped with
// call context at the failure site; match with errors.Is.
var (
	// ErrInvalidToolArguments means the model requested the retrieval
	// tool without a usable query argument. The retrieval gateway is
	// not called.
	ErrInvalidToolArguments = errors.New("assistant: invalid tool arguments")

	// ErrRetrievalUnavailable means the retrieval gateway failed. The
	// follow-up completion call is not made.
	ErrRetrievalUnavailable = errors.New("assistant: retrieval unavailable")

	// ErrCompletionUnavailable means a completion call failed. There
	// is no local retry; retrying the turn is the caller's decision.
	ErrCompletionUnavailable = errors.New("assistant: completion unavailable")
)

// DefaultMaxTokens caps generated output when the config leaves
// MaxTokens unset.
const DefaultMaxTokens = 2000

// DefaultRetrievalLimit is the number of documents requested per
// retrieval dispatch when the config leaves RetrievalLimit unset.
const DefaultRetrievalLimit = 4

// Config holds the dependencies and generation parameters for an
// [Orchestrator].
type Config struct {
	// Provider is the completion backend.
	Provider llm.Provider

	// Gateway answers retrieval queries.
	Gateway retrieval.Gateway

	// Transcript is the session's conversation history. The
	// orchestrator owns it for the session's lifetime.
	Transcript *history.Transcript

	// Model is the provider model identifier.
	Model string

	// SystemPrompt is sent with every completion call.
	SystemPrompt string

	// ToolDescription and QueryDescription are the profile's steering
	// texts for the retrieval tool descriptor. Empty selects built-in
	// fallbacks.
	ToolDescription  string
	QueryDescription string

	// MaxTokens caps output length per completion call. Zero means
	// DefaultMaxTokens.
	MaxTokens int

	// Temperature and TopP are the sampling parameters. Nil leaves
	// the provider defaults.
	Temperature *float64
	TopP        *float64

	// StopSequences end generation when produced.
	StopSequences []string

	// RetrievalLimit is the document count per retrieval dispatch.
	// Zero means DefaultRetrievalLimit.
	RetrievalLimit int

	// Estimator, when set, is calibrated with actual input token
	// counts after each completion call.
	Estimator *history.CharEstimator

	// OnDelta, when set, receives text deltas as completion calls
	// stream. Calls are sequential within a turn.
	OnDelta func(text string)

	// OnRetrieval, when set, receives each dispatched query and its
	// results as the dispatch completes. Calls are sequential within
	// a turn.
	OnRetrieval func(query string, documents []retrieval.Document)

	Logger *slog.Logger
}

// Orchestrator runs the grounded-answer cycle for one session. Not
// safe for concurrent use; each session gets its own instance with
// its own transcript.
type Orchestrator struct {
	provider       llm.Provider
	gateway        retrieval.Gateway
	transcript     *history.Transcript
	model          string
	systemPrompt   string
	tools          []llm.ToolDefinition
	maxTokens      int
	temperature    *float64
	topP           *float64
	stopSequences  []string
	retrievalLimit int
	estimator      *history.CharEstimator
	onDelta        func(text string)
	onRetrieval    func(query string, documents []retrieval.Document)
	logger         *slog.Logger
}

// Answer is the outcome of one successful turn.
type Answer struct {
	// Text is the final answer text.
	Text string

	// Queries are the retrieval queries dispatched this turn, in
	// dispatch order. Empty when the model answered directly.
	Queries []string

	// Documents are the retrieved documents across all dispatches,
	// in dispatch order. Backs the grounding-sources display.
	Documents []retrieval.Document

	// Usage is the token consumption summed over the turn's
	// completion calls.
	Usage llm.Usage

	// CompletionCalls is the number of completion calls made (1 or 2).
	CompletionCalls int
}

// New validates the config and returns an orchestrator.
func New(config Config) (*Orchestrator, error) {
	if config.Provider == nil {
		return nil, errors.New("assistant: config.Provider is required")
	}
	if config.Gateway == nil {
		return nil, errors.New("assistant: config.Gateway is required")
	}
	if config.Transcript == nil {
		return nil, errors.New("assistant: config.Transcript is required")
	}
	if config.Model == "" {
		return nil, errors.New("assistant: config.Model is required")
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	retrievalLimit := config.RetrievalLimit
	if retrievalLimit <= 0 {
		retrievalLimit = DefaultRetrievalLimit
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		provider:       config.Provider,
		gateway:        config.Gateway,
		transcript:     config.Transcript,
		model:          config.Model,
		systemPrompt:   config.SystemPrompt,
		tools:          []llm.ToolDefinition{toolDefinition(config.ToolDescription, config.QueryDescription)},
		maxTokens:      maxTokens,
		temperature:    config.Temperature,
		topP:           config.TopP,
		stopSequences:  config.StopSequences,
		retrievalLimit: retrievalLimit,
		estimator:      config.Estimator,
		onDelta:        config.OnDelta,
		onRetrieval:    config.OnRetrieval,
		logger:         logger,
	}, nil
}

// Transcript returns the orchestrator's transcript, for session
// persistence and display.
func (orchestrator *Orchestrator) Transcript() *history.Transcript {
	return orchestrator.transcript
}

// Respond runs one turn: commit the user's message, call the model,
// dispatch any retrieval requests, and call the model once more for
// the final text. At most two completion calls and at most one
// retrieval dispatch per tool request are made per turn.
//
// On failure the user's message stays in the transcript and nothing
// else is appended, so a retried turn sees the same history.
func (orchestrator *Orchestrator) Respond(ctx context.Context, userText string) (*Answer, error) {
	orchestrator.transcript.Append(llm.UserMessage(userText))
	if evicted := orchestrator.transcript.Prune(); evicted > 0 {
		orchestrator.logger.Info("transcript pruned",
			"evicted_groups", evicted,
			"retained_messages", orchestrator.transcript.Len(),
		)
	}
	committed := orchestrator.transcript.Messages()

	answer := &Answer{}

	orchestrator.logger.Info("starting completion call", "call", 1, "messages", len(committed))
	response, err := orchestrator.complete(ctx, committed)
	if err != nil {
		return nil, fmt.Errorf("%w: first call: %w", ErrCompletionUnavailable, err)
	}
	answer.CompletionCalls = 1
	answer.Usage = response.Usage
	orchestrator.recordUsage(committed, response.Usage)

	// Messages the cycle produces are staged and committed to the
	// transcript only when the whole turn succeeds.
	staged := []llm.Message{response.AssistantMessage()}

	toolUses := response.ToolUses()
	if len(toolUses) == 0 {
		answer.Text = response.TextContent()
		orchestrator.commit(staged)
		orchestrator.logger.Info("turn complete", "completion_calls", 1, "answer_length", len(answer.Text))
		return answer, nil
	}

	results, err := orchestrator.dispatch(ctx, toolUses, answer)
	if err != nil {
		return nil, err
	}
	staged = append(staged, llm.ToolResultMessage(results...))

	withResults := append(committed, staged...)
	orchestrator.logger.Info("starting completion call", "call", 2, "messages", len(withResults))
	final, err := orchestrator.complete(ctx, withResults)
	if err != nil {
		return nil, fmt.Errorf("%w: second call: %w", ErrCompletionUnavailable, err)
	}
	answer.CompletionCalls = 2
	answer.Usage.InputTokens += final.Usage.InputTokens
	answer.Usage.OutputTokens += final.Usage.OutputTokens
	orchestrator.recordUsage(withResults, final.Usage)

	// The cycle makes at most two completion calls per turn. A tool
	// request in the second response is not serviced; its text is
	// returned as-is.
	if remaining := final.ToolUses(); len(remaining) > 0 {
		orchestrator.logger.Warn("tool requested on final call, not serviced",
			"count", len(remaining),
		)
	}

	answer.Text = final.TextContent()
	staged = append(staged, final.AssistantMessage())
	orchestrator.commit(staged)
	orchestrator.logger.Info("turn complete",
		"completion_calls", 2,
		"queries", len(answer.Queries),
		"documents", len(answer.Documents),
		"answer_length", len(answer.Text),
	)
	return answer, nil
}

// plannedCall pairs a tool-use request with its parsed query. known is
// false for tool names the orchestrator does not serve.
type plannedCall struct {
	toolUse llm.ToolUse
	query   string
	known   bool
}

// dispatch validates every retrieval request, then runs the searches
// sequentially and returns one result per request. Validation happens
// up front so an invalid request fails the turn before any gateway
// call. Requests for unknown tools become error results the model
// sees on the follow-up call.
func (orchestrator *Orchestrator) dispatch(ctx context.Context, toolUses []llm.ToolUse, answer *Answer) ([]llm.ToolResult, error) {
	planned := make([]plannedCall, 0, len(toolUses))
	for _, toolUse := range toolUses {
		if toolUse.Name != ToolName {
			orchestrator.logger.Warn("unknown tool requested", "name", toolUse.Name, "id", toolUse.ID)
			planned = append(planned, plannedCall{toolUse: toolUse})
			continue
		}
		query, err := parseQuery(toolUse.Input)
		if err != nil {
			return nil, fmt.Errorf("tool use %s: %w", toolUse.ID, err)
		}
		planned = append(planned, plannedCall{toolUse: toolUse, query: query, known: true})
	}

	results := make([]llm.ToolResult, 0, len(planned))
	for _, call := range planned {
		if !call.known {
			results = append(results, llm.ToolResult{
				ToolUseID: call.toolUse.ID,
				Content:   fmt.Sprintf("unknown tool %q", call.toolUse.Name),
				IsError:   true,
			})
			continue
		}

		orchestrator.logger.Info("retrieving", "query", call.query, "limit", orchestrator.retrievalLimit)
		documents, err := orchestrator.gateway.Search(ctx, call.query, orchestrator.retrievalLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: query %q: %w", ErrRetrievalUnavailable, call.query, err)
		}
		orchestrator.logger.Info("retrieved", "query", call.query, "documents", len(documents))
		answer.Queries = append(answer.Queries, call.query)
		answer.Documents = append(answer.Documents, documents...)
		if orchestrator.onRetrieval != nil {
			orchestrator.onRetrieval(call.query, documents)
		}

		results = append(results, llm.ToolResult{
			ToolUseID: call.toolUse.ID,
			Content:   foldDocuments(documents),
		})
	}
	return results, nil
}

// complete makes one completion call. With a delta handler configured
// the call streams and forwards text deltas; the accumulated response
// is returned either way.
func (orchestrator *Orchestrator) complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	request := llm.Request{
		Model:         orchestrator.model,
		System:        orchestrator.systemPrompt,
		Messages:      messages,
		Tools:         orchestrator.tools,
		MaxTokens:     orchestrator.maxTokens,
		Temperature:   orchestrator.temperature,
		TopP:          orchestrator.topP,
		StopSequences: orchestrator.stopSequences,
	}

	if orchestrator.onDelta == nil {
		return orchestrator.provider.Complete(ctx, request)
	}

	stream, err := orchestrator.provider.Stream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		if event.Type == llm.EventTextDelta && event.Text != "" {
			orchestrator.onDelta(event.Text)
		}
	}

	response := stream.Response()
	return &response, nil
}

// commit appends the staged cycle messages and re-bounds the
// transcript so session checkpoints stay within the turn limit. The
// newest turn group is never evicted, so the cycle just committed
// survives.
func (orchestrator *Orchestrator) commit(staged []llm.Message) {
	for _, message := range staged {
		orchestrator.transcript.Append(message)
	}
	orchestrator.transcript.Prune()
}

func (orchestrator *Orchestrator) recordUsage(messages []llm.Message, usage llm.Usage) {
	if orchestrator.estimator != nil {
		orchestrator.estimator.RecordUsage(messages, usage.InputTokens)
	}
}
