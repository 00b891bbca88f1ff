// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "encoding/json"

// MarshalJSON encodes v as human-readable JSON. Struct fields follow
// declaration order and map keys are sorted (encoding/json's own
// behaviour); the encoding is not canonicalised beyond that, which is
// acceptable for the TextJSON format since it is not
// the input to encryption's authenticated-data path in the same way
// CompactBinary's determinism is relied on elsewhere.
func MarshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalJSON decodes JSON data into v.
func UnmarshalJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// RawJSON is a raw encoded JSON value, used to defer decoding of a
// tagged-union event payload until the event Kind is known.
type RawJSON = json.RawMessage
