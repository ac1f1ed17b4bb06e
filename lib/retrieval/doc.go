// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieval provides the document lookup gateway the assistant
// consults when the model requests domain information.
//
// [Gateway] is the abstraction: a top-k text search returning ranked
// [Document] values. [HTTPGateway] adapts a Qdrant-style vector store
// query endpoint with server-side embedding inference; [Static] serves
// a fixed in-memory document list for tests and the mock server.
//
// The gateway is deliberately thin: ranking, embedding, and indexing
// all live server-side. Callers must preserve the order of returned
// documents — position is the relevance ranking.
package retrieval
