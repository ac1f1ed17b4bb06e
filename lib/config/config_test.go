// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a Default config completed with the fields that
// have no defaults and therefore must come from the file.
func validConfig() *Config {
	cfg := Default()
	cfg.Completion.Model = "test-model"
	cfg.Retrieval.Collection = "manuals"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Completion.Provider != ProviderAnthropic {
		t.Errorf("expected provider=anthropic, got %s", cfg.Completion.Provider)
	}

	if cfg.Completion.MaxTokens != 2000 {
		t.Errorf("expected max_tokens=2000, got %d", cfg.Completion.MaxTokens)
	}

	if cfg.Completion.Temperature != 0 {
		t.Errorf("expected temperature=0, got %g", cfg.Completion.Temperature)
	}

	if cfg.Completion.TopP != 0.9 {
		t.Errorf("expected top_p=0.9, got %g", cfg.Completion.TopP)
	}

	if len(cfg.Completion.StopSequences) != 0 {
		t.Errorf("expected no stop sequences, got %v", cfg.Completion.StopSequences)
	}

	if cfg.Retrieval.Limit != 4 {
		t.Errorf("expected limit=4, got %d", cfg.Retrieval.Limit)
	}

	if cfg.History.MaxTurns != 20 {
		t.Errorf("expected max_turns=20, got %d", cfg.History.MaxTurns)
	}

	if !cfg.UI.Markdown {
		t.Error("expected markdown=true by default")
	}
}

func TestLoad_RequiresDocentConfig(t *testing.T) {
	// t.Setenv registers the restore; the test needs the variable absent.
	t.Setenv("DOCENT_CONFIG", "")
	os.Unsetenv("DOCENT_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DOCENT_CONFIG not set, got nil")
	}

	expectedMsg := "DOCENT_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithDocentConfig(t *testing.T) {
	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
environment: staging
paths:
  root: /test/root
completion:
  model: claude-sonnet-4-0
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("DOCENT_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
}

func TestLoadFile(t *testing.T) {
	// Create temp config file.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
environment: staging

paths:
  root: /custom/root
  sessions: /custom/sessions

completion:
  provider: openai
  endpoint: https://api.openai.com/v1
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
  max_tokens: 1024
  temperature: 0.3
  stop_sequences: ["END"]

retrieval:
  endpoint: http://qdrant:6333
  collection: manuals
  model: all-minilm-l6-v2
  limit: 8

history:
  max_turns: 40

assistant:
  profile: /custom/profile.jsonc

ui:
  markdown: false
  theme: light
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Sessions != "/custom/sessions" {
		t.Errorf("expected sessions=/custom/sessions, got %s", cfg.Paths.Sessions)
	}

	if cfg.Completion.Provider != ProviderOpenAI {
		t.Errorf("expected provider=openai, got %s", cfg.Completion.Provider)
	}

	if cfg.Completion.Model != "gpt-4o-mini" {
		t.Errorf("expected model=gpt-4o-mini, got %s", cfg.Completion.Model)
	}

	if cfg.Completion.MaxTokens != 1024 {
		t.Errorf("expected max_tokens=1024, got %d", cfg.Completion.MaxTokens)
	}

	if cfg.Completion.Temperature != 0.3 {
		t.Errorf("expected temperature=0.3, got %g", cfg.Completion.Temperature)
	}

	// Absent fields keep their defaults.
	if cfg.Completion.TopP != 0.9 {
		t.Errorf("expected top_p=0.9 from defaults, got %g", cfg.Completion.TopP)
	}

	if len(cfg.Completion.StopSequences) != 1 || cfg.Completion.StopSequences[0] != "END" {
		t.Errorf("expected stop_sequences=[END], got %v", cfg.Completion.StopSequences)
	}

	if cfg.Retrieval.Collection != "manuals" {
		t.Errorf("expected collection=manuals, got %s", cfg.Retrieval.Collection)
	}

	if cfg.Retrieval.Limit != 8 {
		t.Errorf("expected limit=8, got %d", cfg.Retrieval.Limit)
	}

	if cfg.History.MaxTurns != 40 {
		t.Errorf("expected max_turns=40, got %d", cfg.History.MaxTurns)
	}

	if cfg.Assistant.Profile != "/custom/profile.jsonc" {
		t.Errorf("expected profile=/custom/profile.jsonc, got %s", cfg.Assistant.Profile)
	}

	if cfg.UI.Markdown {
		t.Error("expected markdown=false")
	}

	if cfg.UI.Theme != "light" {
		t.Errorf("expected theme=light, got %s", cfg.UI.Theme)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
environment: production

paths:
  root: /default/root

completion:
  model: claude-sonnet-4-0
  endpoint: http://localhost:8091

retrieval:
  collection: manuals
  limit: 4

production:
  paths:
    root: /prod/root
  completion:
    endpoint: https://api.anthropic.com
  retrieval:
    limit: 8
  history:
    max_turns: 50
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// Production overrides should be applied.
	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}

	if cfg.Completion.Endpoint != "https://api.anthropic.com" {
		t.Errorf("expected production endpoint, got %s", cfg.Completion.Endpoint)
	}

	// Base values the override section does not name survive.
	if cfg.Completion.Model != "claude-sonnet-4-0" {
		t.Errorf("expected model=claude-sonnet-4-0, got %s", cfg.Completion.Model)
	}

	if cfg.Retrieval.Limit != 8 {
		t.Errorf("expected limit=8 from production override, got %d", cfg.Retrieval.Limit)
	}

	if cfg.History.MaxTurns != 50 {
		t.Errorf("expected max_turns=50 from production override, got %d", cfg.History.MaxTurns)
	}
}

func TestOverridesIgnoredForOtherEnvironment(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
environment: development

completion:
  model: claude-sonnet-4-0

production:
  retrieval:
    limit: 16
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Retrieval.Limit != 4 {
		t.Errorf("expected limit=4, got %d (production override applied in development)", cfg.Retrieval.Limit)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Verify that environment variables do NOT override config file values.
	// The config file is the single source of truth for deterministic configuration.
	t.Setenv("DOCENT_ROOT", "/env/root")
	t.Setenv("DOCENT_ENVIRONMENT", "staging")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
environment: development
paths:
  root: /file/root
completion:
  model: claude-sonnet-4-0
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// File values should be used, NOT env vars.
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s (env vars should not override)", cfg.Paths.Root)
	}
}

func TestExpandVariablesInPaths(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docent.yaml")

	configContent := `
paths:
  root: /data/docent
  sessions: ${DOCENT_ROOT}/saved
assistant:
  profile: ${DOCENT_ROOT}/profile.jsonc
completion:
  model: claude-sonnet-4-0
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Sessions != "/data/docent/saved" {
		t.Errorf("expected sessions=/data/docent/saved, got %s", cfg.Paths.Sessions)
	}

	if cfg.Assistant.Profile != "/data/docent/profile.jsonc" {
		t.Errorf("expected profile=/data/docent/profile.jsonc, got %s", cfg.Assistant.Profile)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/docent",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/docent",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "default config lacks model and collection",
			modify: func(c *Config) {
				c.Completion.Model = ""
				c.Retrieval.Collection = ""
			},
			wantErr: true,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty root path",
			modify: func(c *Config) {
				c.Paths.Root = ""
			},
			wantErr: true,
		},
		{
			name: "unknown provider",
			modify: func(c *Config) {
				c.Completion.Provider = "cohere"
			},
			wantErr: true,
		},
		{
			name: "zero max tokens",
			modify: func(c *Config) {
				c.Completion.MaxTokens = 0
			},
			wantErr: true,
		},
		{
			name: "temperature out of range",
			modify: func(c *Config) {
				c.Completion.Temperature = 2.5
			},
			wantErr: true,
		},
		{
			name: "top_p out of range",
			modify: func(c *Config) {
				c.Completion.TopP = 1.2
			},
			wantErr: true,
		},
		{
			name: "unparseable completion timeout",
			modify: func(c *Config) {
				c.Completion.Timeout = "soon"
			},
			wantErr: true,
		},
		{
			name: "empty timeout is allowed",
			modify: func(c *Config) {
				c.Completion.Timeout = ""
			},
			wantErr: false,
		},
		{
			name: "zero retrieval limit",
			modify: func(c *Config) {
				c.Retrieval.Limit = 0
			},
			wantErr: true,
		},
		{
			name: "zero max turns",
			modify: func(c *Config) {
				c.History.MaxTurns = 0
			},
			wantErr: true,
		},
		{
			name: "unknown theme",
			modify: func(c *Config) {
				c.UI.Theme = "solarized"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Completion.Timeout = "90s"
	cfg.Retrieval.Timeout = ""

	if got := cfg.Completion.RequestTimeout(); got != 90*time.Second {
		t.Errorf("completion timeout = %v, want 90s", got)
	}
	if got := cfg.Retrieval.RequestTimeout(); got != 0 {
		t.Errorf("retrieval timeout = %v, want 0 for empty field", got)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("DOCENT_TEST_KEY", "secret-value")

	cfg := validConfig()
	cfg.Completion.APIKeyEnv = "DOCENT_TEST_KEY"
	cfg.Retrieval.APIKeyEnv = ""

	if got := cfg.Completion.APIKey(); got != "secret-value" {
		t.Errorf("APIKey() = %q, want %q", got, "secret-value")
	}
	if got := cfg.Retrieval.APIKey(); got != "" {
		t.Errorf("APIKey() = %q, want empty when no variable is configured", got)
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := validConfig()
	cfg.Paths.Root = filepath.Join(tmpDir, "docent")
	cfg.Paths.Sessions = filepath.Join(cfg.Paths.Root, "sessions")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	// Verify directories were created.
	for _, path := range []string{cfg.Paths.Root, cfg.Paths.Sessions} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
