package progress

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalPayload produces canonical JSON for a transition payload.
//
// The encoding follows RFC 8785 for string-keyed string maps: keys are
// sorted by UTF-16 code units, strings are NFC normalized, and < > & are not
// escaped. Canonical bytes make audit rows byte-comparable across replays.
func MarshalPayload(payload map[string]string) ([]byte, error) {
	if len(payload) == 0 {
		return []byte("{}"), nil
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(keys[i], keys[j]) < 0
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		ks, err := marshalString(k)
		if err != nil {
			return nil, fmt.Errorf("marshal payload key %q: %w", k, err)
		}
		buf.Write(ks)
		buf.WriteByte(':')
		vs, err := marshalString(payload[k])
		if err != nil {
			return nil, fmt.Errorf("marshal payload value for %q: %w", k, err)
		}
		buf.Write(vs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareUTF16 compares strings by UTF-16 code units as RFC 8785 requires.
// This differs from byte comparison for characters outside the BMP.
func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}

// marshalString encodes an NFC-normalized JSON string without HTML escaping.
func marshalString(s string) ([]byte, error) {
	s = norm.NFC.String(s)

	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
}
