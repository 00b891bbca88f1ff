// Copyright 2026 The TimeLoop Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import "testing"

type sampleRecord struct {
	Kind string `json:"kind"`
	Seq  int    `json:"seq"`
}

func TestFormatStringAndParse(t *testing.T) {
	tests := []struct {
		format Format
		name   string
	}{
		{TextJSON, "text_json"},
		{CompactBinary, "compact_binary"},
	}
	for _, test := range tests {
		if got := test.format.String(); got != test.name {
			t.Errorf("Format(%d).String() = %q, want %q", test.format, got, test.name)
		}
		parsed, err := ParseFormat(test.name)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", test.name, err)
		}
		if parsed != test.format {
			t.Errorf("ParseFormat(%q) = %v, want %v", test.name, parsed, test.format)
		}
	}
}

func TestParseFormatRejectsUnknown(t *testing.T) {
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format name")
	}
}

func TestMarshalRecordRoundTrip(t *testing.T) {
	for _, format := range []Format{TextJSON, CompactBinary} {
		original := sampleRecord{Kind: "command", Seq: 7}

		data, err := MarshalRecord(format, original)
		if err != nil {
			t.Fatalf("MarshalRecord(%v): %v", format, err)
		}

		var decoded sampleRecord
		if err := UnmarshalRecord(format, data, &decoded); err != nil {
			t.Fatalf("UnmarshalRecord(%v): %v", format, err)
		}

		if decoded != original {
			t.Errorf("format %v roundtrip mismatch: got %+v, want %+v", format, decoded, original)
		}
	}
}
