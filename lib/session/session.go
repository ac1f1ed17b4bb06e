// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/docent/lib/llm"
)

// Record is one saved conversation. Records are serialized as CBOR
// only, never JSON.
type Record struct {
	// ID is the session identifier ("ses-" + 12 hex characters),
	// derived from creation time and the first user message.
	ID string `cbor:"id"`

	CreatedAt time.Time `cbor:"created-at"`
	UpdatedAt time.Time `cbor:"updated-at"`

	// Title is the first user message, truncated for listings.
	Title string `cbor:"title"`

	// Messages is the conversation transcript at last checkpoint.
	Messages []llm.Message `cbor:"messages"`
}

// Summary is the listing view of a stored record, without the message
// payload.
type Summary struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Title        string
	MessageCount int
}

// sessionDomainKey is the BLAKE3 keyed-hash domain for session IDs.
// The byte values are the ASCII encoding of the domain name,
// zero-padded to 32 bytes, so the key is inspectable in hex dumps
// without sacrificing any cryptographic property.
var sessionDomainKey = [32]byte{
	'd', 'o', 'c', 'e', 'n', 't', '.', 's', 'e', 's', 's', 'i', 'o', 'n',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// idHexLength is the number of hex characters after the "ses-" prefix.
const idHexLength = 12

// maxTitleRunes caps Title length in listings.
const maxTitleRunes = 80

// NewRecord creates a record for a conversation that started now with
// the given first user message.
func NewRecord(now time.Time, firstUserText string) *Record {
	return &Record{
		ID:        NewID(now, firstUserText),
		CreatedAt: now,
		UpdatedAt: now,
		Title:     Title(firstUserText),
	}
}

// NewID derives a session identifier from the creation time and the
// first user message: "ses-" plus the first 12 hex characters of a
// domain-keyed BLAKE3 hash.
func NewID(createdAt time.Time, firstUserText string) string {
	hasher, err := blake3.NewKeyed(sessionDomainKey[:])
	if err != nil {
		panic("session: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(createdAt.UTC().Format(time.RFC3339Nano)))
	hasher.Write([]byte{0})
	hasher.Write([]byte(firstUserText))
	sum := hasher.Sum(nil)
	return "ses-" + hex.EncodeToString(sum[:idHexLength/2])
}

// ValidID reports whether id has the session identifier shape. Store
// operations reject anything else, which also keeps file paths derived
// from IDs safe.
func ValidID(id string) bool {
	rest, found := strings.CutPrefix(id, "ses-")
	if !found || len(rest) != idHexLength {
		return false
	}
	for _, c := range rest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Title derives the listing title from the first user message: the
// first line, whitespace-trimmed, capped at 80 runes.
func Title(firstUserText string) string {
	title := strings.TrimSpace(firstUserText)
	if line, _, found := strings.Cut(title, "\n"); found {
		title = strings.TrimSpace(line)
	}
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-1]) + "…"
	}
	return title
}

// Summary returns the listing view of the record.
func (record *Record) Summary() Summary {
	return Summary{
		ID:           record.ID,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
		Title:        record.Title,
		MessageCount: len(record.Messages),
	}
}
