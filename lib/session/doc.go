// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session persists conversations across runs. A [Record] is
// one saved conversation; a [Store] keeps records as single files in
// a state directory, CBOR-encoded, compressed, and written atomically
// via temp-and-rename so a crash never leaves a partial file.
//
// Saving is a per-turn checkpoint and best-effort by policy: an
// assistant that crashes because it cannot persist is worse than one
// that continues without persistence, so [Store.Checkpoint] logs
// failures and returns nothing.
package session
