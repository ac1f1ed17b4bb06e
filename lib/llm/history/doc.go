// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history maintains the conversation transcript for a single
// assistant session.
//
// [Transcript] is an ordered message log with a bounded retained
// length. When the bound is exceeded, [Transcript.Prune] evicts whole
// turn groups from the oldest end. A turn group starts at a user
// message carrying text content and includes everything up to the next
// such message — so a retrieval cycle (assistant tool call, tool
// result, final answer) is evicted atomically with the user prompt
// that triggered it, and the transcript never starts with an orphaned
// assistant message or a dangling tool result.
//
// [CharEstimator] provides approximate token counts for the transcript
// from character counts, calibrated against actual usage reported by
// the completion provider. It drives the context-size readout in the
// UI and logs; the pruning bound itself is a turn count, not a token
// budget.
//
// A Transcript is owned by exactly one session and is not safe for
// concurrent use.
package history
