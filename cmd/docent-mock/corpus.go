// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/docent/lib/retrieval"
)

// defaultSearchLimit applies when a query request leaves the limit
// unset.
const defaultSearchLimit = 10

// loadCorpus reads every regular file under directory into a document
// list, one document per file, in path order. Hidden files and
// directories (dot-prefixed) and blank files are skipped. Sources are
// directory-relative paths.
func loadCorpus(directory string) ([]retrieval.Document, error) {
	var documents []retrieval.Document
	err := filepath.WalkDir(directory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(entry.Name(), ".")
		if entry.IsDir() {
			if hidden && path != directory {
				return fs.SkipDir
			}
			return nil
		}
		if hidden {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		text := string(data)
		if strings.TrimSpace(text) == "" {
			return nil
		}
		source, err := filepath.Rel(directory, path)
		if err != nil {
			return err
		}
		documents = append(documents, retrieval.Document{Text: text, Source: source})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	if len(documents) == 0 {
		return nil, fmt.Errorf("no documents under %s", directory)
	}
	return documents, nil
}

// searchHandler serves a Qdrant-style points/query endpoint over the
// loaded corpus. Any collection name is accepted; there is one
// corpus. Matching is term overlap, not vector search: relevant files
// surface even when the scripted model sends a whole question as the
// query.
type searchHandler struct {
	corpus []retrieval.Document
	logger *slog.Logger
}

type searchRequest struct {
	Query struct {
		Text  string `json:"text"`
		Model string `json:"model"`
	} `json:"query"`
	Limit int `json:"limit"`
}

type searchResponse struct {
	Result searchResult `json:"result"`
	Status string       `json:"status"`
}

type searchResult struct {
	Points []searchPoint `json:"points"`
}

type searchPoint struct {
	Score   float64       `json:"score"`
	Payload searchPayload `json:"payload"`
}

type searchPayload struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

func (handler *searchHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	collection := request.PathValue("collection")

	var decoded searchRequest
	if err := json.NewDecoder(request.Body).Decode(&decoded); err != nil {
		handler.sendError(writer, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	limit := decoded.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	documents := matchDocuments(handler.corpus, decoded.Query.Text, limit)

	points := make([]searchPoint, 0, len(documents))
	for _, document := range documents {
		points = append(points, searchPoint{
			Score:   document.Score,
			Payload: searchPayload{Text: document.Text, Source: document.Source},
		})
	}

	handler.logger.Info("search served",
		"collection", collection,
		"query", decoded.Query.Text,
		"matches", len(points),
	)
	writeJSON(writer, handler.logger, searchResponse{
		Result: searchResult{Points: points},
		Status: "ok",
	})
}

func (handler *searchHandler) sendError(writer http.ResponseWriter, status int, format string, args ...any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	body := map[string]any{
		"status": map[string]string{"error": fmt.Sprintf(format, args...)},
	}
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		handler.logger.Warn("writing error response", "error", err)
	}
}

// matchDocuments returns corpus documents sharing terms with the
// query, most shared terms first, corpus order breaking ties. A
// document matches when any whitespace-split query term appears
// case-insensitively in its text or source; the score is the matched
// fraction. An empty query returns the corpus head unscored.
func matchDocuments(corpus []retrieval.Document, query string, limit int) []retrieval.Document {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		matched := slices.Clone(corpus[:min(limit, len(corpus))])
		return matched
	}

	type match struct {
		document retrieval.Document
		count    int
	}
	var matches []match
	for _, document := range corpus {
		haystack := strings.ToLower(document.Text + "\n" + document.Source)
		count := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				count++
			}
		}
		if count == 0 {
			continue
		}
		document.Score = float64(count) / float64(len(terms))
		matches = append(matches, match{document: document, count: count})
	}

	slices.SortStableFunc(matches, func(a, b match) int {
		return b.count - a.count
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	documents := make([]retrieval.Document, 0, len(matches))
	for _, entry := range matches {
		documents = append(documents, entry.document)
	}
	return documents
}
