// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/bureau-foundation/docent/lib/chatui"
	"github.com/bureau-foundation/docent/lib/codec"
	"github.com/bureau-foundation/docent/lib/session"
)

const sessionTimeFormat = "Jan 02 15:04"

// runListSessions prints a table of saved sessions, newest first.
func runListSessions(store *session.Store, output io.Writer) error {
	summaries, err := store.List()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tUPDATED\tMSGS\tTITLE")
	for _, summary := range summaries {
		title := summary.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n",
			summary.ID, summary.UpdatedAt.Local().Format(sessionTimeFormat),
			summary.MessageCount, title)
	}
	return writer.Flush()
}

// runDumpSession prints one stored session in CBOR diagnostic
// notation.
func runDumpSession(store *session.Store, id string, output io.Writer) error {
	payload, err := store.Dump(id)
	if err != nil {
		return err
	}
	diagnostic, err := codec.Diagnose(payload)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	fmt.Fprintln(output, diagnostic)
	return nil
}

// resolveSession maps the --resume value to a stored record. The
// picker sentinel opens the fuzzy picker; a cancelled pick returns a
// nil record and no error, which exits the program quietly.
func resolveSession(app *app, resumeID string) (*session.Record, error) {
	if resumeID == resumePicker {
		return pickSession(app)
	}
	if !session.ValidID(resumeID) {
		return nil, fmt.Errorf("invalid session ID %q (expected ses- followed by 12 hex characters)", resumeID)
	}
	return app.store.Load(resumeID)
}

// pickSession runs the fuzzy picker over the saved sessions and loads
// the chosen one.
func pickSession(app *app) (*session.Record, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("the session picker needs a terminal; use --resume=ID instead")
	}

	summaries, err := app.store.List()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no saved sessions to resume")
	}

	picker := chatui.NewPicker(summaries, app.theme())
	program := tea.NewProgram(picker, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return nil, err
	}

	chosen, ok := finalModel.(chatui.PickerModel).Choice()
	if !ok {
		return nil, nil
	}
	return app.store.Load(chosen.ID)
}

func (app *app) theme() chatui.Theme {
	return chatui.ThemeByName(app.config.UI.Theme)
}
