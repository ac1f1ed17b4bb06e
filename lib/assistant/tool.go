// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bureau-foundation/docent/lib/llm"
	"github.com/bureau-foundation/docent/lib/retrieval"
)

// ToolName is the name of the single tool the assistant exposes to
// the model.
const ToolName = "retrieve_domain_information"

// Fallback descriptor text, used when the profile leaves the
// descriptions empty.
const (
	defaultToolDescription = "Search the indexed domain documents for passages " +
		"relevant to a query. Use this before answering any question that " +
		"depends on domain facts."

	defaultQueryDescription = "Natural-language description of the information needed."
)

type toolParameter struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type toolSchema struct {
	Type       string                   `json:"type"`
	Properties map[string]toolParameter `json:"properties"`
	Required   []string                 `json:"required"`
}

// toolDefinition builds the retrieval tool descriptor from the
// profile's description texts.
func toolDefinition(description, queryDescription string) llm.ToolDefinition {
	if description == "" {
		description = defaultToolDescription
	}
	if queryDescription == "" {
		queryDescription = defaultQueryDescription
	}
	schema, _ := json.Marshal(toolSchema{
		Type: "object",
		Properties: map[string]toolParameter{
			"query": {Type: "string", Description: queryDescription},
		},
		Required: []string{"query"},
	})
	return llm.ToolDefinition{
		Name:        ToolName,
		Description: description,
		InputSchema: schema,
	}
}

// parseQuery extracts the required query argument from a tool-use
// input. A missing, empty, or malformed argument is a contract
// violation by the model, reported as [ErrInvalidToolArguments] and
// never silently defaulted.
func parseQuery(input json.RawMessage) (string, error) {
	var arguments struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &arguments); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToolArguments, err)
	}
	if strings.TrimSpace(arguments.Query) == "" {
		return "", fmt.Errorf("%w: required parameter %q is missing or empty", ErrInvalidToolArguments, "query")
	}
	return arguments.Query, nil
}

// foldDocuments concatenates retrieved document text with blank-line
// separators, preserving gateway order with no re-sorting and no
// de-duplication. An empty result set produces a fixed notice so the
// model can tell the search ran and found nothing.
func foldDocuments(documents []retrieval.Document) string {
	if len(documents) == 0 {
		return "No matching documents found."
	}
	texts := make([]string, len(documents))
	for i, document := range documents {
		texts[i] = document.Text
	}
	return strings.Join(texts, "\n\n")
}
