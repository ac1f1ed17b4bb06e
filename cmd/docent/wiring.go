// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/docent/lib/assistant"
	"github.com/bureau-foundation/docent/lib/config"
	"github.com/bureau-foundation/docent/lib/llm"
	"github.com/bureau-foundation/docent/lib/llm/history"
	"github.com/bureau-foundation/docent/lib/profile"
	"github.com/bureau-foundation/docent/lib/retrieval"
	"github.com/bureau-foundation/docent/lib/session"
)

// app bundles the wired components a conversation mode runs over. One
// app serves one process; the transcript carries the active session.
type app struct {
	config     *config.Config
	profile    *profile.Profile
	provider   llm.Provider
	gateway    retrieval.Gateway
	transcript *history.Transcript
	estimator  *history.CharEstimator
	store      *session.Store
	events     *eventLog
	logger     *slog.Logger
}

func buildApp(cfg *config.Config, logger *slog.Logger, events *eventLog) (*app, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	assistantProfile, err := loadProfile(cfg)
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg.Completion)
	if err != nil {
		return nil, err
	}

	retrievalClient := &http.Client{Timeout: cfg.Retrieval.RequestTimeout()}
	gateway := retrieval.NewHTTPGateway(retrievalClient, cfg.Retrieval.Endpoint,
		cfg.Retrieval.Collection, cfg.Retrieval.Model, cfg.Retrieval.APIKey())

	store, err := session.NewStore(cfg.Paths.Sessions, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		config:     cfg,
		profile:    assistantProfile,
		provider:   provider,
		gateway:    gateway,
		transcript: history.NewTranscript(cfg.History.MaxTurns),
		estimator:  history.NewCharEstimator(),
		store:      store,
		events:     events,
		logger:     logger,
	}, nil
}

// orchestrator assembles the turn engine over the app's components.
// onDelta is non-nil only for modes with a live streaming display.
func (app *app) orchestrator(onDelta func(string)) (*assistant.Orchestrator, error) {
	// Temperature and top-p are always sent explicitly; zero
	// temperature means deterministic sampling, not "use the provider
	// default".
	temperature := app.config.Completion.Temperature
	topP := app.config.Completion.TopP

	return assistant.New(assistant.Config{
		Provider:         app.provider,
		Gateway:          app.gateway,
		Transcript:       app.transcript,
		Model:            app.config.Completion.Model,
		SystemPrompt:     app.profile.SystemPrompt,
		ToolDescription:  app.profile.ToolDescription,
		QueryDescription: app.profile.QueryDescription,
		MaxTokens:        app.config.Completion.MaxTokens,
		Temperature:      &temperature,
		TopP:             &topP,
		StopSequences:    app.config.Completion.StopSequences,
		RetrievalLimit:   app.config.Retrieval.Limit,
		Estimator:        app.estimator,
		OnDelta:          onDelta,
		OnRetrieval:      app.events.retrievalHook(),
		Logger:           app.logger,
	})
}

// checkpoint saves the conversation after a completed turn. The record
// is created on the first checkpoint, seeded with the transcript's
// oldest user message: the session ID and title derive from it, and
// after a failed first turn that message is the failed question, not
// the one just answered. Returns the record for subsequent turns.
func (app *app) checkpoint(record *session.Record) *session.Record {
	now := time.Now().UTC()
	if record == nil {
		record = session.NewRecord(now, transcriptFirstUserText(app.transcript))
	}
	record.Messages = app.transcript.Messages()
	record.UpdatedAt = now
	app.store.Checkpoint(record)
	return record
}

// transcriptFirstUserText returns the text of the oldest retained user
// message, the seed for new session records.
func transcriptFirstUserText(transcript *history.Transcript) string {
	messages := transcript.Messages()
	if len(messages) == 0 {
		return ""
	}
	for _, block := range messages[0].Content {
		if block.Type == llm.ContentText {
			return block.Text
		}
	}
	return ""
}

// seedTranscript replays a stored session into the transcript so the
// next turn continues the conversation.
func (app *app) seedTranscript(record *session.Record) {
	for _, message := range record.Messages {
		app.transcript.Append(message)
	}
	app.transcript.Prune()
}

// loadProfile reads the configured profile file, or falls back to the
// built-in profile when none is configured.
func loadProfile(cfg *config.Config) (*profile.Profile, error) {
	if cfg.Assistant.Profile == "" {
		return profile.Default(), nil
	}
	assistantProfile, err := profile.ReadFile(cfg.Assistant.Profile)
	if err != nil {
		return nil, err
	}
	if err := assistantProfile.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Assistant.Profile, err)
	}
	return assistantProfile, nil
}

// newProvider selects the completion backend from the config. The
// HTTP client timeout bounds the whole request, streamed responses
// included; an empty config timeout disables it.
func newProvider(cfg config.CompletionConfig) (llm.Provider, error) {
	client := &http.Client{Timeout: cfg.RequestTimeout()}
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return llm.NewAnthropic(client, cfg.Endpoint, cfg.APIKey()), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAI(client, cfg.Endpoint, cfg.APIKey()), nil
	}
	return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
}
