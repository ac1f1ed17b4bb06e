// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// docent is a terminal assistant for asking questions about a private
// document collection. A language model decides, per question, whether
// to search the collection before answering; answers are grounded in
// the retrieved text and annotated with their sources.
//
// Three modes of operation:
//
// Interactive TUI (default when stdin is a terminal): a full-screen
// chat with streamed answers, markdown rendering, and a fuzzy picker
// for resuming saved sessions.
//
// One-shot (--ask): runs a single question through the orchestration
// cycle and prints the answer to stdout.
//
// REPL (--repl, or any non-terminal stdin): a line-oriented loop
// reading questions from stdin and writing answers to stdout.
//
// Configuration comes from a YAML file named by DOCENT_CONFIG or
// --config. Every completed turn checkpoints the session; --resume
// continues a saved one.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/docent/lib/config"
	"github.com/bureau-foundation/docent/lib/session"
	"github.com/bureau-foundation/docent/lib/version"
)

// resumePicker is the NoOptDefVal sentinel for a bare --resume, which
// opens the picker instead of naming a session. Never a valid session
// ID.
const resumePicker = "pick"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		askQuestion  string
		replMode     bool
		resumeID     string
		listSessions bool
		dumpID       string
		emitEvents   bool
		logLevel     string
		noMarkdown   bool
	)

	flagSet := pflag.NewFlagSet("docent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to docent.yaml (default: $DOCENT_CONFIG)")
	flagSet.StringVar(&askQuestion, "ask", "", "answer one question and exit")
	flagSet.BoolVar(&replMode, "repl", false, "line-oriented loop on stdin/stdout")
	flagSet.StringVar(&resumeID, "resume", "", "resume a saved session (bare --resume opens the picker)")
	flagSet.Lookup("resume").NoOptDefVal = resumePicker
	flagSet.BoolVar(&listSessions, "list-sessions", false, "list saved sessions and exit")
	flagSet.StringVar(&dumpID, "dump-session", "", "print a stored session in CBOR diagnostic notation and exit")
	flagSet.BoolVar(&emitEvents, "events", false, "write JSON turn events to stderr")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log verbosity: debug, info, warn, error")
	flagSet.BoolVar(&noMarkdown, "no-markdown", false, "render answers as plain text in the TUI")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing so it works without a config.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("docent")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s (use --ask to pass a question)", args[0])
	}
	if askQuestion != "" && replMode {
		return fmt.Errorf("--ask and --repl are mutually exclusive")
	}
	// An explicitly empty --resume means the picker too.
	if flagSet.Changed("resume") && resumeID == "" {
		resumeID = resumePicker
	}

	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if noMarkdown {
		cfg.UI.Markdown = false
	}

	// In TUI mode stderr writes would tear the alt screen, so logs are
	// discarded unless a level was asked for explicitly.
	interactive := askQuestion == "" && !replMode && term.IsTerminal(int(os.Stdin.Fd()))
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if interactive && !flagSet.Changed("log-level") {
		handler = slog.DiscardHandler
	}
	logger := slog.New(handler)

	if listSessions || dumpID != "" {
		store, err := session.NewStore(cfg.Paths.Sessions, logger)
		if err != nil {
			return err
		}
		if listSessions {
			return runListSessions(store, os.Stdout)
		}
		return runDumpSession(store, dumpID, os.Stdout)
	}

	var events *eventLog
	if emitEvents {
		events = newEventLog(os.Stderr)
	}

	app, err := buildApp(cfg, logger, events)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var record *session.Record
	if resumeID != "" {
		record, err = resolveSession(app, resumeID)
		if err != nil {
			return err
		}
		if record == nil {
			// Picker cancelled.
			return nil
		}
		app.seedTranscript(record)
		logger.Info("session resumed", "session", record.ID, "messages", len(record.Messages))
	}

	switch {
	case askQuestion != "":
		return runAsk(ctx, app, record, askQuestion)
	case !interactive:
		return runREPL(ctx, app, record)
	default:
		return runChat(ctx, app, record)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q (expected debug, info, warn, or error)", name)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `docent — terminal assistant for a private document collection.

Questions go through a language model that decides, per question,
whether to search the collection first; answers are grounded in the
retrieved text and annotated with their sources.

With a terminal on stdin, docent opens a full-screen chat. Piped
input, --ask, and --repl run headless: --ask answers one question and
exits, --repl reads questions line by line. Every completed turn
checkpoints the session; --resume continues a saved one.

Configuration is a YAML file named by DOCENT_CONFIG or --config.

Usage:
  docent [flags]

Examples:
  # Interactive chat
  docent

  # One question, answer on stdout
  docent --ask "how do I descale the machine"

  # Pipe questions through the line REPL
  docent --repl < questions.txt

  # Resume a saved session by ID, or pick one interactively
  docent --resume=ses-4d0f21ab9e44
  docent --resume

  # Trace the orchestration cycle as JSON lines on stderr
  docent --events --ask "which fuse does the pump use" 2> trace.jsonl

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
