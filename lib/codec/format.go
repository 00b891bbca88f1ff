// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "fmt"

// Format selects the on-disk record encoding for a store. A store's
// Format is chosen at creation time and never changes for the lifetime
// of that store's directory.
type Format int

const (
	// TextJSON encodes records with encoding/json: human-readable,
	// larger, easy to inspect with generic tools.
	TextJSON Format = iota
	// CompactBinary encodes records with CBOR Core Deterministic
	// Encoding: smaller, byte-stable for identical logical values.
	CompactBinary
)

// String returns the wire name of the format, as persisted in store
// metadata ("text_json" / "compact_binary").
func (f Format) String() string {
	switch f {
	case TextJSON:
		return "text_json"
	case CompactBinary:
		return "compact_binary"
	default:
		return fmt.Sprintf("codec.Format(%d)", int(f))
	}
}

// ParseFormat parses a store metadata format name back into a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "text_json":
		return TextJSON, nil
	case "compact_binary":
		return CompactBinary, nil
	default:
		return 0, fmt.Errorf("codec: unknown format %q", name)
	}
}

// MarshalRecord encodes v using the given format.
func MarshalRecord(format Format, v any) ([]byte, error) {
	switch format {
	case TextJSON:
		return MarshalJSON(v)
	case CompactBinary:
		return Marshal(v)
	default:
		return nil, fmt.Errorf("codec: unknown format %v", format)
	}
}

// UnmarshalRecord decodes data into v using the given format.
func UnmarshalRecord(format Format, data []byte, v any) error {
	switch format {
	case TextJSON:
		return UnmarshalJSON(data, v)
	case CompactBinary:
		return Unmarshal(data, v)
	default:
		return fmt.Errorf("codec: unknown format %v", format)
	}
}
