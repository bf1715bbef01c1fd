// Package payload reads fields out of command payloads and writes the flat
// response record, without depending on a general-purpose JSON parser.
package payload

import (
	"bytes"
	"unicode/utf8"
)

// ExtractField returns the string value stored under name in raw.
//
// Matching is anchor based: the first occurrence of `"<name>":`, then the
// next double quote, then the following double quote. The bytes between the
// two quotes are the value. This is not a JSON parser and has known limits:
//   - escaped quotes inside a value end the value early
//   - nesting is ignored, so a key inside a nested object or string matches too
//   - the first occurrence wins for duplicate keys
//   - a non-string value makes the next quoted token be taken instead
//
// A value longer than capacity bytes is truncated on a rune boundary.
// A missing field, or one without a closing quote, yields "".
func ExtractField(raw []byte, name string, capacity int) string {
	anchor := make([]byte, 0, len(name)+3)
	anchor = append(anchor, '"')
	anchor = append(anchor, name...)
	anchor = append(anchor, '"', ':')

	start := bytes.Index(raw, anchor)
	if start < 0 {
		return ""
	}
	rest := raw[start+len(anchor):]

	open := bytes.IndexByte(rest, '"')
	if open < 0 {
		return ""
	}
	rest = rest[open+1:]

	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return ""
	}

	return string(truncateRunes(rest[:end], capacity))
}

// truncateRunes cuts b to at most limit bytes without splitting a UTF-8
// sequence. A negative limit means no limit.
func truncateRunes(b []byte, limit int) []byte {
	if limit < 0 || len(b) <= limit {
		return b
	}
	b = b[:limit]
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
