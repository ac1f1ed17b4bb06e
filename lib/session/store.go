// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/docent/lib/codec"
)

// fileSuffix is appended to the session ID to form the file name.
const fileSuffix = ".session"

// headerSize is the fixed file header: 1-byte compression tag plus an
// 8-byte big-endian uncompressed size.
const headerSize = 9

// maxRecordSize bounds the decoded record size. A header claiming
// more is treated as corruption rather than an allocation request.
const maxRecordSize = 256 << 20

// Store keeps session records as single files in a state directory.
type Store struct {
	directory string
	logger    *slog.Logger
}

// NewStore opens a store over the given directory, creating it if
// needed.
func NewStore(directory string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return nil, fmt.Errorf("session: creating state directory: %w", err)
	}
	return &Store{directory: directory, logger: logger}, nil
}

// Save writes the record to its file atomically: encode, compress,
// write to a temporary file in the same directory, fsync, rename into
// place. Readers never see a partial write.
func (store *Store) Save(record *Record) error {
	if !ValidID(record.ID) {
		return fmt.Errorf("session: invalid session ID %q", record.ID)
	}

	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: encoding record: %w", err)
	}
	payload, tag := compressPayload(data)

	file := make([]byte, 0, headerSize+len(payload))
	file = append(file, byte(tag))
	file = binary.BigEndian.AppendUint64(file, uint64(len(data)))
	file = append(file, payload...)

	if err := writeFileAtomic(store.path(record.ID), file); err != nil {
		return fmt.Errorf("session: writing %s: %w", record.ID, err)
	}

	store.logger.Debug("session saved",
		"session", record.ID,
		"messages", len(record.Messages),
		"compression", tag.String(),
		"bytes", len(file),
	)
	return nil
}

// Checkpoint saves the record, logging failure instead of returning
// it. A conversation never dies because a checkpoint could not be
// written.
func (store *Store) Checkpoint(record *Record) {
	if err := store.Save(record); err != nil {
		store.logger.Warn("session checkpoint failed, continuing without persistence",
			"session", record.ID,
			"error", err,
		)
	}
}

// Load reads one record by ID. A missing session returns an error
// wrapping os.ErrNotExist, testable with errors.Is.
func (store *Store) Load(id string) (*Record, error) {
	payload, err := store.payload(id)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := codec.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("session: %s: decoding record: %w", id, err)
	}
	return &record, nil
}

// Dump returns the decoded CBOR payload of a stored session, for
// diagnostic display with codec.Diagnose.
func (store *Store) Dump(id string) ([]byte, error) {
	return store.payload(id)
}

// List returns summaries of every stored session, newest first by
// update time. Unreadable files are skipped with a warning so one
// corrupt record cannot hide the rest.
func (store *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(store.directory)
	if err != nil {
		return nil, fmt.Errorf("session: reading state directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, fileSuffix)
		if !ValidID(id) {
			continue
		}
		record, err := store.Load(id)
		if err != nil {
			store.logger.Warn("skipping unreadable session file", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, record.Summary())
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return summaries, nil
}

// Delete removes one stored session.
func (store *Store) Delete(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("session: invalid session ID %q", id)
	}
	if err := os.Remove(store.path(id)); err != nil {
		return fmt.Errorf("session: deleting %s: %w", id, err)
	}
	return nil
}

func (store *Store) path(id string) string {
	return filepath.Join(store.directory, id+fileSuffix)
}

// payload reads a session file and returns the decompressed CBOR
// payload.
func (store *Store) payload(id string) ([]byte, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("session: invalid session ID %q", id)
	}
	data, err := os.ReadFile(store.path(id))
	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", id, err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("session: %s: file too short for header", id)
	}

	tag := compressionTag(data[0])
	uncompressedSize := binary.BigEndian.Uint64(data[1:headerSize])
	if uncompressedSize > maxRecordSize {
		return nil, fmt.Errorf("session: %s: header claims %d bytes, limit %d",
			id, uncompressedSize, maxRecordSize)
	}

	payload, err := decompressPayload(data[headerSize:], tag, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("session: %s: %w", id, err)
	}
	return payload, nil
}

// writeFileAtomic writes data to a temporary file in the target's
// directory, fsyncs, and renames into place. The file is created with
// mode 0600.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	// Write, sync, close, rename — in that order. If any step fails,
	// remove the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
