// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/docent/lib/assistant"
	"github.com/bureau-foundation/docent/lib/session"
)

// runAsk answers a single question and exits. Output is the answer
// text alone so the mode composes in shell pipelines; --events adds
// the machine-readable trace on stderr.
func runAsk(ctx context.Context, app *app, record *session.Record, question string) error {
	orchestrator, err := app.orchestrator(nil)
	if err != nil {
		return err
	}
	return ask(ctx, app, orchestrator, record, question, os.Stdout)
}

func ask(ctx context.Context, app *app, orchestrator *assistant.Orchestrator, record *session.Record, question string, output io.Writer) error {
	app.events.turnStart(question)
	answer, err := orchestrator.Respond(ctx, question)
	if err != nil {
		app.events.turnError(err)
		return err
	}
	app.events.answer(answer)

	fmt.Fprintln(output, answer.Text)
	app.checkpoint(record)
	return nil
}

// runREPL reads questions line by line from stdin. The prompt is shown
// only when stdin is a terminal, so piped input produces clean output.
func runREPL(ctx context.Context, app *app, record *session.Record) error {
	orchestrator, err := app.orchestrator(nil)
	if err != nil {
		return err
	}
	prompt := term.IsTerminal(int(os.Stdin.Fd()))
	return repl(ctx, app, orchestrator, record, os.Stdin, os.Stdout, os.Stderr, prompt)
}

// repl is the line loop: read a question, run the turn, print the
// answer with its grounding sources. A failed turn reports the error
// and keeps the loop alive; the user's message stays in history for
// the retry.
func repl(ctx context.Context, app *app, orchestrator *assistant.Orchestrator, record *session.Record, input io.Reader, output, errOutput io.Writer, prompt bool) error {
	if record != nil && prompt {
		fmt.Fprintf(output, "resumed %s (%d messages)\n", record.ID, len(record.Messages))
	}

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if prompt {
			fmt.Fprint(output, "> ")
		}
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		app.events.turnStart(question)
		answer, err := orchestrator.Respond(ctx, question)
		if err != nil {
			app.events.turnError(err)
			fmt.Fprintf(errOutput, "error: %v\n", err)
			continue
		}
		app.events.answer(answer)

		fmt.Fprintln(output, answer.Text)
		printSources(output, answer)
		fmt.Fprintln(output)

		record = app.checkpoint(record)
	}
	return scanner.Err()
}

// printSources lists the turn's grounding documents, numbered in
// dispatch order.
func printSources(output io.Writer, answer *assistant.Answer) {
	if len(answer.Documents) == 0 {
		return
	}
	fmt.Fprintln(output)
	for index, document := range answer.Documents {
		source := document.Source
		if source == "" {
			source = "unnamed document"
		}
		fmt.Fprintf(output, "  [%d] %s (%.2f)\n", index+1, source, document.Score)
	}
}
