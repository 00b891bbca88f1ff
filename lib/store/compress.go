// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

const (
	compressTagNone byte = 0
	compressTagZstd byte = 1
)

// compressValue prefixes plaintext with a one-byte tag identifying
// whether (and how) the remainder is compressed. Data that does not
// shrink under zstd is stored under compressTagNone rather than paying
// zstd's frame overhead for nothing.
func compressValue(plaintext []byte) []byte {
	compressed := zstdEncoder.EncodeAll(plaintext, nil)
	if len(compressed) >= len(plaintext) {
		out := make([]byte, 1+len(plaintext))
		out[0] = compressTagNone
		copy(out[1:], plaintext)
		return out
	}
	out := make([]byte, 1+4+len(compressed))
	out[0] = compressTagZstd
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(plaintext)))
	copy(out[5:], compressed)
	return out
}

// decompressValue reverses compressValue.
func decompressValue(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("store: compressed value is empty")
	}
	tag, body := data[0], data[1:]
	switch tag {
	case compressTagNone:
		return body, nil
	case compressTagZstd:
		if len(body) < 4 {
			return nil, fmt.Errorf("store: zstd value missing length prefix")
		}
		uncompressedLen := binary.LittleEndian.Uint32(body[:4])
		result, err := zstdDecoder.DecodeAll(body[4:], make([]byte, 0, uncompressedLen))
		if err != nil {
			return nil, fmt.Errorf("store: zstd decompress: %w", err)
		}
		if uint32(len(result)) != uncompressedLen {
			return nil, fmt.Errorf("store: zstd decompress: got %d bytes, want %d", len(result), uncompressedLen)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("store: unknown compression tag %d", tag)
	}
}
