// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// docent-mock serves offline doubles of docent's two upstream
// services: an Anthropic-style Messages endpoint with a scripted
// model, and a Qdrant-style query endpoint over a directory of text
// files. Point a docent config's completion and retrieval endpoints
// at the same address to run docent without API keys or a vector
// store.
//
// The scripted model always retrieves: the first completion call of a
// turn returns a tool invocation carrying the user's question, and
// the call after the tool result answers by quoting the retrieved
// context.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/docent/lib/retrieval"
	"github.com/bureau-foundation/docent/lib/service"
	"github.com/bureau-foundation/docent/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddress string
		docsDirectory string
	)

	flagSet := pflag.NewFlagSet("docent-mock", pflag.ContinueOnError)
	flagSet.StringVar(&listenAddress, "listen", "127.0.0.1:8900", "TCP listen address")
	flagSet.StringVar(&docsDirectory, "docs", "", "directory of text files to serve as the document collection")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("docent-mock")
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
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if docsDirectory == "" {
		return fmt.Errorf("--docs is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	corpus, err := loadCorpus(docsDirectory)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", "directory", docsDirectory, "documents", len(corpus))

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address: listenAddress,
		Handler: newMux(corpus, logger),
		Logger:  logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}

// newMux routes the two mock endpoints. Both are stateless; the
// search endpoint closes over the loaded corpus.
func newMux(corpus []retrieval.Document, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/messages", &completionHandler{logger: logger})
	mux.Handle("POST /collections/{collection}/points/query", &searchHandler{
		corpus: corpus,
		logger: logger,
	})
	return mux
}

// writeJSON encodes value as JSON into writer, setting the
// Content-Type header. If encoding fails (typically because the
// client disconnected), the error is logged — the caller cannot send
// a corrective response to a dead client.
func writeJSON(writer http.ResponseWriter, logger *slog.Logger, value any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		logger.Warn("writing JSON response", "error", err)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `docent-mock — offline doubles of docent's upstream services.

Serves an Anthropic-style /v1/messages endpoint with a scripted model
and a Qdrant-style /collections/{name}/points/query endpoint over a
directory of text files. Searches match every query term as a
substring and return documents in path order, unscored.

The scripted model always retrieves: the first completion call of a
turn returns a tool invocation carrying the user's question, and the
call after the tool result answers by quoting the retrieved context.

Usage:
  docent-mock --docs DIR [flags]

Examples:
  # Serve both endpoints over a directory of text files
  docent-mock --docs ./handbook

  # Matching docent config (any collection name works)
  completion:
    endpoint: http://127.0.0.1:8900
    model: mock-model
  retrieval:
    endpoint: http://127.0.0.1:8900
    collection: handbook

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
