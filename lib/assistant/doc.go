// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assistant runs the grounded-answer cycle that turns a user
// message into a reply: one completion call that may request the
// retrieval tool, at most one retrieval dispatch per request in that
// response, and at most one follow-up completion call that produces
// the final text. The [Orchestrator] owns a session's transcript and
// commits each turn atomically: the user's message lands before the
// cycle runs, and the cycle's assistant and tool-result messages land
// only when the whole turn succeeds.
//
// Gateway failures are never converted into fabricated answers. Each
// failure mode carries a sentinel ([ErrInvalidToolArguments],
// [ErrRetrievalUnavailable], [ErrCompletionUnavailable]) matched with
// errors.Is, so the caller decides between reporting the error and
// retrying the turn.
package assistant
