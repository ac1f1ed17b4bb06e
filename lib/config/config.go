// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Providers that the completion section accepts.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the master configuration for docent.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Completion configures the model completion endpoint.
	Completion CompletionConfig `yaml:"completion"`

	// Retrieval configures the document retrieval endpoint.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// History configures conversation transcript bounds.
	History HistoryConfig `yaml:"history"`

	// Assistant configures the assistant profile.
	Assistant AssistantConfig `yaml:"assistant"`

	// UI configures terminal presentation.
	UI UIConfig `yaml:"ui"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Completion *CompletionConfig `yaml:"completion,omitempty"`
	Retrieval  *RetrievalConfig  `yaml:"retrieval,omitempty"`
	History    *HistoryConfig    `yaml:"history,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for docent data.
	Root string `yaml:"root"`

	// Sessions is where saved conversations are stored.
	Sessions string `yaml:"sessions"`
}

// CompletionConfig configures the model completion endpoint.
type CompletionConfig struct {
	// Provider selects the wire protocol: "anthropic" or "openai".
	Provider string `yaml:"provider"`

	// Endpoint is the provider base URL.
	// Default: https://api.anthropic.com
	Endpoint string `yaml:"endpoint"`

	// Model is the model identifier sent with every request.
	// No default; the config file must set it.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxTokens caps the generated tokens per completion call.
	// Default: 2000
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature.
	// Default: 0
	Temperature float64 `yaml:"temperature"`

	// TopP is the nucleus sampling parameter.
	// Default: 0.9
	TopP float64 `yaml:"top_p"`

	// StopSequences are strings that end generation early.
	// Default: none
	StopSequences []string `yaml:"stop_sequences"`

	// Timeout bounds each completion request, as a Go duration
	// string. Empty disables the timeout.
	// Default: 120s
	Timeout string `yaml:"timeout"`
}

// RetrievalConfig configures the document retrieval endpoint.
type RetrievalConfig struct {
	// Endpoint is the vector store base URL.
	// Default: http://localhost:6333
	Endpoint string `yaml:"endpoint"`

	// Collection is the document collection to query.
	Collection string `yaml:"collection"`

	// Model optionally names the server-side embedding model. Empty
	// uses the collection's configured model.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Limit is the number of documents fetched per query.
	// Default: 4
	Limit int `yaml:"limit"`

	// Timeout bounds each retrieval request, as a Go duration
	// string. Empty disables the timeout.
	// Default: 15s
	Timeout string `yaml:"timeout"`
}

// HistoryConfig configures conversation transcript bounds.
type HistoryConfig struct {
	// MaxTurns is the number of conversation turns retained before
	// the oldest are evicted.
	// Default: 20
	MaxTurns int `yaml:"max_turns"`
}

// AssistantConfig configures the assistant profile.
type AssistantConfig struct {
	// Profile is the path to a JSONC profile file holding the system
	// prompt and tool descriptions. Empty uses the built-in profile.
	Profile string `yaml:"profile"`
}

// UIConfig configures terminal presentation.
type UIConfig struct {
	// Markdown renders answers through the terminal markdown
	// renderer. Default: true
	Markdown bool `yaml:"markdown"`

	// Theme selects the color theme: "dark" or "light".
	// Default: dark
	Theme string `yaml:"theme"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "docent")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     defaultRoot,
			Sessions: filepath.Join(defaultRoot, "sessions"),
		},
		Completion: CompletionConfig{
			Provider:    ProviderAnthropic,
			Endpoint:    "https://api.anthropic.com",
			APIKeyEnv:   "ANTHROPIC_API_KEY",
			MaxTokens:   2000,
			Temperature: 0,
			TopP:        0.9,
			Timeout:     "120s",
		},
		Retrieval: RetrievalConfig{
			Endpoint: "http://localhost:6333",
			Limit:    4,
			Timeout:  "15s",
		},
		History: HistoryConfig{
			MaxTurns: 20,
		},
		UI: UIConfig{
			Markdown: true,
			Theme:    "dark",
		},
	}
}

// Load loads configuration from the DOCENT_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if DOCENT_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("DOCENT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DOCENT_CONFIG environment variable not set; " +
			"set it to the path of your docent.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.Sessions != "" {
			c.Paths.Sessions = overrides.Paths.Sessions
		}
	}

	if overrides.Completion != nil {
		if overrides.Completion.Provider != "" {
			c.Completion.Provider = overrides.Completion.Provider
		}
		if overrides.Completion.Endpoint != "" {
			c.Completion.Endpoint = overrides.Completion.Endpoint
		}
		if overrides.Completion.Model != "" {
			c.Completion.Model = overrides.Completion.Model
		}
		if overrides.Completion.APIKeyEnv != "" {
			c.Completion.APIKeyEnv = overrides.Completion.APIKeyEnv
		}
		if overrides.Completion.MaxTokens != 0 {
			c.Completion.MaxTokens = overrides.Completion.MaxTokens
		}
		if overrides.Completion.Temperature != 0 {
			c.Completion.Temperature = overrides.Completion.Temperature
		}
		if overrides.Completion.TopP != 0 {
			c.Completion.TopP = overrides.Completion.TopP
		}
		if len(overrides.Completion.StopSequences) > 0 {
			c.Completion.StopSequences = overrides.Completion.StopSequences
		}
		if overrides.Completion.Timeout != "" {
			c.Completion.Timeout = overrides.Completion.Timeout
		}
	}

	if overrides.Retrieval != nil {
		if overrides.Retrieval.Endpoint != "" {
			c.Retrieval.Endpoint = overrides.Retrieval.Endpoint
		}
		if overrides.Retrieval.Collection != "" {
			c.Retrieval.Collection = overrides.Retrieval.Collection
		}
		if overrides.Retrieval.Model != "" {
			c.Retrieval.Model = overrides.Retrieval.Model
		}
		if overrides.Retrieval.APIKeyEnv != "" {
			c.Retrieval.APIKeyEnv = overrides.Retrieval.APIKeyEnv
		}
		if overrides.Retrieval.Limit != 0 {
			c.Retrieval.Limit = overrides.Retrieval.Limit
		}
		if overrides.Retrieval.Timeout != "" {
			c.Retrieval.Timeout = overrides.Retrieval.Timeout
		}
	}

	if overrides.History != nil {
		if overrides.History.MaxTurns != 0 {
			c.History.MaxTurns = overrides.History.MaxTurns
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DOCENT_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DOCENT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Sessions = expandVars(c.Paths.Sessions, vars)
	c.Assistant.Profile = expandVars(c.Assistant.Profile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.Sessions == "" {
		errs = append(errs, fmt.Errorf("paths.sessions is required"))
	}

	providers := []string{ProviderAnthropic, ProviderOpenAI}
	if !slices.Contains(providers, c.Completion.Provider) {
		errs = append(errs, fmt.Errorf("completion.provider must be one of: %v", providers))
	}
	if c.Completion.Endpoint == "" {
		errs = append(errs, fmt.Errorf("completion.endpoint is required"))
	}
	if c.Completion.Model == "" {
		errs = append(errs, fmt.Errorf("completion.model is required"))
	}
	if c.Completion.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("completion.max_tokens must be at least 1"))
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		errs = append(errs, fmt.Errorf("completion.temperature must be between 0 and 2"))
	}
	if c.Completion.TopP <= 0 || c.Completion.TopP > 1 {
		errs = append(errs, fmt.Errorf("completion.top_p must be in (0, 1]"))
	}
	if err := validTimeout(c.Completion.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("completion.timeout: %w", err))
	}

	if c.Retrieval.Endpoint == "" {
		errs = append(errs, fmt.Errorf("retrieval.endpoint is required"))
	}
	if c.Retrieval.Collection == "" {
		errs = append(errs, fmt.Errorf("retrieval.collection is required"))
	}
	if c.Retrieval.Limit < 1 {
		errs = append(errs, fmt.Errorf("retrieval.limit must be at least 1"))
	}
	if err := validTimeout(c.Retrieval.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("retrieval.timeout: %w", err))
	}

	if c.History.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("history.max_turns must be at least 1"))
	}

	themes := []string{"dark", "light"}
	if !slices.Contains(themes, c.UI.Theme) {
		errs = append(errs, fmt.Errorf("ui.theme must be one of: %v", themes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validTimeout(timeout string) error {
	if timeout == "" {
		return nil
	}
	if _, err := time.ParseDuration(timeout); err != nil {
		return fmt.Errorf("invalid duration %q", timeout)
	}
	return nil
}

// APIKey reads the configured API-key environment variable. Empty if
// the variable is unset or no variable is configured.
func (c CompletionConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// RequestTimeout returns the parsed completion timeout. Zero when the
// field is empty; [Config.Validate] guarantees non-empty values parse.
func (c CompletionConfig) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// APIKey reads the configured API-key environment variable. Empty if
// the variable is unset or no variable is configured.
func (c RetrievalConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// RequestTimeout returns the parsed retrieval timeout. Zero when the
// field is empty; [Config.Validate] guarantees non-empty values parse.
func (c RetrievalConfig) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Sessions,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
