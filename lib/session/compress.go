// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressionTag identifies the compression algorithm of a stored
// payload. Tags are written to file headers (1 byte each). These
// values are format constants — changing them breaks existing files.
type compressionTag uint8

const (
	// compressionNone indicates an uncompressed payload, used when
	// neither compressor beats the original size.
	compressionNone compressionTag = 0

	// compressionLZ4 indicates LZ4 block compression. Used when the
	// payload compresses, but not well enough to justify zstd.
	compressionLZ4 compressionTag = 1

	// compressionZstd indicates zstd at the default level. The usual
	// outcome for conversation text.
	compressionZstd compressionTag = 2
)

func (tag compressionTag) String() string {
	switch tag {
	case compressionNone:
		return "none"
	case compressionLZ4:
		return "lz4"
	case compressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// errIncompressible is returned by the compressors when the output
// would not be smaller than the input. The caller falls back to
// compressionNone.
var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("session: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("session: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload compresses data with the best-fitting algorithm: a
// zstd probe selects zstd at ratio >= 1.5, LZ4 at >= 1.1, and falls
// back to the uncompressed payload below that.
func compressPayload(data []byte) ([]byte, compressionTag) {
	if len(data) == 0 {
		return data, compressionNone
	}

	probed := zstdEncoder.EncodeAll(data, nil)
	ratio := float64(len(data)) / float64(len(probed))

	switch {
	case ratio >= 1.5:
		return probed, compressionZstd

	case ratio >= 1.1:
		compressed, err := compressLZ4(data)
		if err != nil {
			// LZ4 declined what zstd managed; the probe output is
			// still smaller than the input.
			return probed, compressionZstd
		}
		return compressed, compressionLZ4

	default:
		return data, compressionNone
	}
}

// decompressPayload reverses compressPayload. The uncompressedSize
// must match the original length exactly; a mismatch is corruption
// and returns an error.
func decompressPayload(payload []byte, tag compressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(payload), uncompressedSize)
		}
		return payload, nil

	case compressionLZ4:
		return decompressLZ4(payload, uncompressedSize)

	case compressionZstd:
		return decompressZstd(payload, uncompressedSize)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also reject output that is not actually smaller
	// than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
