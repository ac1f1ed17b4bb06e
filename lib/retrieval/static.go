// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package retrieval

import (
	"context"
	"strings"
)

// Static is an in-memory Gateway over a fixed document list. Matching is
// case-insensitive substring search over document text and source, with
// results in insertion order. It backs tests; it is not a ranking
// engine.
type Static struct {
	documents []Document
}

// NewStatic returns a gateway serving the given documents. The slice is
// not copied; callers must not mutate it afterward.
func NewStatic(documents []Document) *Static {
	return &Static{documents: documents}
}

// Search implements Gateway. An empty query matches every document. Each
// query term (whitespace-split) must appear in the document's text or
// source for the document to match.
func (static *Static) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	terms := strings.Fields(strings.ToLower(query))
	matched := make([]Document, 0, limit)
	for _, document := range static.documents {
		if len(matched) == limit {
			break
		}
		if matchesAllTerms(document, terms) {
			matched = append(matched, document)
		}
	}
	return matched, nil
}

func matchesAllTerms(document Document, terms []string) bool {
	haystack := strings.ToLower(document.Text + "\n" + document.Source)
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}
