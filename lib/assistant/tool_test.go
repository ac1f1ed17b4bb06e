// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assistant

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bureau-foundation/docent/lib/retrieval"
)

func TestParseQuery(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name      string
		input     string
		wantQuery string
		wantErr   bool
	}{
		{"valid", `{"query": "return policy"}`, "return policy", false},
		{"extra fields ignored", `{"query": "shipping", "limit": 9}`, "shipping", false},
		{"missing", `{}`, "", true},
		{"empty", `{"query": ""}`, "", true},
		{"whitespace only", `{"query": " \t\n"}`, "", true},
		{"wrong type", `{"query": 42}`, "", true},
		{"malformed", `{"query"`, "", true},
		{"empty input", ``, "", true},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			query, err := parseQuery(json.RawMessage(test.input))
			if test.wantErr {
				if !errors.Is(err, ErrInvalidToolArguments) {
					t.Fatalf("parseQuery(%q) error = %v, want ErrInvalidToolArguments", test.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseQuery(%q): %v", test.input, err)
			}
			if query != test.wantQuery {
				t.Errorf("parseQuery(%q) = %q, want %q", test.input, query, test.wantQuery)
			}
		})
	}
}

func TestFoldDocuments(t *testing.T) {
	t.Parallel()

	documents := []retrieval.Document{
		{Text: "First passage.", Source: "a.md"},
		{Text: "Second passage.", Source: "b.md"},
		{Text: "Third passage.", Source: "c.md"},
	}
	want := "First passage.\n\nSecond passage.\n\nThird passage."
	if got := foldDocuments(documents); got != want {
		t.Errorf("foldDocuments = %q, want %q", got, want)
	}

	if got := foldDocuments(nil); got != "No matching documents found." {
		t.Errorf("foldDocuments(nil) = %q, want the no-matches notice", got)
	}

	if got := foldDocuments(documents[:1]); got != "First passage." {
		t.Errorf("foldDocuments with one document = %q, want no separator", got)
	}
}

func TestToolDefinition(t *testing.T) {
	t.Parallel()

	definition := toolDefinition("Search the product manuals.", "What to look for.")
	if definition.Name != ToolName {
		t.Errorf("Name = %q, want %q", definition.Name, ToolName)
	}
	if definition.Description != "Search the product manuals." {
		t.Errorf("Description = %q", definition.Description)
	}

	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(definition.InputSchema, &schema); err != nil {
		t.Fatalf("unmarshaling schema: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %q, want object", schema.Type)
	}
	query, present := schema.Properties["query"]
	if !present {
		t.Fatal("schema lacks the query property")
	}
	if query.Type != "string" {
		t.Errorf("query type = %q, want string", query.Type)
	}
	if query.Description != "What to look for." {
		t.Errorf("query description = %q", query.Description)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "query" {
		t.Errorf("required = %v, want [query]", schema.Required)
	}
}

func TestToolDefinitionFallbackDescriptions(t *testing.T) {
	t.Parallel()

	definition := toolDefinition("", "")
	if definition.Description == "" {
		t.Error("empty profile description produced an empty tool description")
	}
	var schema toolSchema
	if err := json.Unmarshal(definition.InputSchema, &schema); err != nil {
		t.Fatalf("unmarshaling schema: %v", err)
	}
	if schema.Properties["query"].Description == "" {
		t.Error("empty profile description produced an empty parameter description")
	}
}
