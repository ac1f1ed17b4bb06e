// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/docent/lib/assistant"
	"github.com/bureau-foundation/docent/lib/chatui"
	"github.com/bureau-foundation/docent/lib/session"
)

// runChat runs the full-screen conversation. Streamed deltas feed the
// live preview through a drop-on-backpressure sink; every completed
// turn checkpoints the session and, on the first turn of a new
// conversation, pushes the freshly minted session ID into the status
// bar.
func runChat(ctx context.Context, app *app, record *session.Record) error {
	onDelta, deltas := chatui.DeltaSink(64)
	orchestrator, err := app.orchestrator(onDelta)
	if err != nil {
		return err
	}

	sessionID := ""
	if record != nil {
		sessionID = record.ID
	}

	var program *tea.Program
	chat := chatui.NewChat(chatui.ChatConfig{
		Orchestrator: orchestrator,
		Deltas:       deltas,
		Estimator:    app.estimator,
		Model:        app.config.Completion.Model,
		SessionID:    sessionID,
		Markdown:     app.config.UI.Markdown,
		Context:      ctx,
		Theme:        app.theme(),
		OnTurnStart:  app.events.turnStart,
		OnTurnError:  app.events.turnError,
		OnTurn: func(answer *assistant.Answer) {
			app.events.answer(answer)
			created := record == nil
			record = app.checkpoint(record)
			if created {
				program.Send(chatui.SessionLabelMsg{ID: record.ID})
			}
		},
	})

	program = tea.NewProgram(chat, tea.WithAltScreen(), tea.WithMouseAllMotion())
	_, err = program.Run()
	return err
}
