// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile provides parsing and validation for assistant
// profiles. A profile holds the prompt material that shapes the
// assistant: the system prompt, the retrieval tool description, and
// the description of the tool's query parameter.
//
// Profiles are authored on disk as JSONC files (JSON extended with
// comments and trailing commas), so deployments can annotate their
// prompt choices in place. A built-in profile is used when no file is
// configured.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Profile is the prompt material for one assistant deployment.
type Profile struct {
	// SystemPrompt is the system instruction sent with every
	// completion request. Required.
	SystemPrompt string `json:"system_prompt"`

	// ToolDescription overrides the built-in description of the
	// retrieval tool. Empty keeps the built-in text.
	ToolDescription string `json:"tool_description,omitempty"`

	// QueryDescription overrides the built-in description of the
	// tool's query parameter. Empty keeps the built-in text.
	QueryDescription string `json:"query_description,omitempty"`
}

// defaultSystemPrompt is the built-in system prompt. It binds answers
// to retrieved documents rather than the model's own knowledge.
const defaultSystemPrompt = `You are an assistant that answers questions about a private document collection.

Use the retrieval tool to look up relevant documents before answering a question about the collection. Base your answer on the retrieved text and mention when the documents do not cover the question instead of guessing. Answer greetings and questions about your own capabilities directly, without retrieval.`

// Default returns the built-in profile. The tool and query
// descriptions are left empty so the orchestrator's built-in texts
// apply.
func Default() *Profile {
	return &Profile{SystemPrompt: defaultSystemPrompt}
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Profile.
func Parse(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	var content Profile
	if err := json.Unmarshal(stripped, &content); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	return &content, nil
}

// ReadFile reads a JSONC profile file from disk and parses it.
// Returns a descriptive error if the file cannot be read or the JSON
// is malformed.
func ReadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	content, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return content, nil
}

// Validate checks the profile for structural issues.
func (profile *Profile) Validate() error {
	if strings.TrimSpace(profile.SystemPrompt) == "" {
		return fmt.Errorf("profile: system_prompt is required")
	}
	return nil
}
