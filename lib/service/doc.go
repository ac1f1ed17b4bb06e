// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides lifecycle scaffolding for docent's
// long-running processes.
//
// The building block is [HTTPServer]: a TCP HTTP server with readiness
// signaling, a resolved listen address (usable with OS-assigned
// ports), and graceful shutdown driven by context cancellation.
// Binaries compose it in their own main() rather than subclassing a
// framework; the caller provides the http.Handler.
package service
