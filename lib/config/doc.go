// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for docent.
//
// Configuration is loaded from a single file specified by either the
// DOCENT_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${DOCENT_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values. API keys are
// never stored in the file; the file names the environment variable
// that holds each key.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Completion, Retrieval,
//     History, Assistant, UI
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other docent packages.
package config
