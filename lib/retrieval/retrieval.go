// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import "context"

// Document is one retrieved item. Text is the payload the orchestrator
// folds into the conversation; Source and Score are presentation
// metadata (shown in the UI, never sent to the model).
type Document struct {
	Text   string
	Source string
	Score  float64
}

// Gateway performs a top-k relevance search over the document store.
//
// The returned slice is ordered by descending relevance; callers must
// preserve that order. A search that matches nothing returns an empty
// slice and a nil error — only transport or store failures are errors.
type Gateway interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}
