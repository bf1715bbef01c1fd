package payload

import (
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// EscapeText makes captured text safe to embed in a quoted field of the
// response record. Double quotes become apostrophes and line feeds become
// spaces. Backslashes and other control characters are escaped JSON style
// and invalid UTF-8 is replaced by the U+FFFD rune so the record stays
// parseable.
//
// The quote and newline substitutions are lossy. They only work because the
// record is flat; do not reuse this for nested structures.
func EscapeText(text []byte) string {
	out, _ := appendEscaped(nil, text, -1)
	return string(out)
}

// appendEscaped appends the escaped form of text to dst, writing at most
// limit bytes (negative means unbounded). Escape sequences are never split.
// It reports whether text was cut short.
func appendEscaped(dst, text []byte, limit int) ([]byte, bool) {
	var scratch [6]byte
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)

		var piece []byte
		switch r {
		case '"':
			piece = append(scratch[:0], '\'')
		case '\n':
			piece = append(scratch[:0], ' ')
		case '\\':
			piece = append(scratch[:0], '\\', '\\')
		default:
			piece = escapeRune(scratch[:0], r, text[:size])
		}

		var ok bool
		if dst, limit, ok = appendPiece(dst, piece, limit); !ok {
			return dst, true
		}
		text = text[size:]
	}
	return dst, false
}

// appendQuotedContent appends text, which is already the content of a JSON
// string, keeping its escape sequences as they are so the value decodes the
// same on the other side. Control characters and invalid UTF-8 are still
// made safe. A backslash that starts no valid escape is escaped itself; an
// escape cut off at the end of text, as left by truncation, is dropped.
func appendQuotedContent(dst, text []byte, limit int) ([]byte, bool) {
	var scratch [6]byte
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)

		var piece []byte
		switch r {
		case '\\':
			n := escapeLen(text)
			switch {
			case n == 0:
				return dst, false
			case n < 0:
				piece = append(scratch[:0], '\\', '\\')
			default:
				piece, size = text[:n], n
			}
		case '"':
			piece = append(scratch[:0], '\\', '"')
		default:
			piece = escapeRune(scratch[:0], r, text[:size])
		}

		var ok bool
		if dst, limit, ok = appendPiece(dst, piece, limit); !ok {
			return dst, true
		}
		text = text[size:]
	}
	return dst, false
}

// escapeLen returns the length of the escape sequence at the start of text,
// 0 when text ends inside it and -1 when it is not a valid JSON escape.
func escapeLen(text []byte) int {
	if len(text) < 2 {
		return 0
	}
	switch text[1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2
	case 'u':
		for i := 2; i < 6; i++ {
			if i >= len(text) {
				return 0
			}
			if !isHex(text[i]) {
				return -1
			}
		}
		return 6
	}
	return -1
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// escapeRune returns the safe form of the rune r encoded as raw, using dst
// as scratch space.
func escapeRune(dst []byte, r rune, raw []byte) []byte {
	switch {
	case r == '\n':
		return append(dst, '\\', 'n')
	case r == '\r':
		return append(dst, '\\', 'r')
	case r == '\t':
		return append(dst, '\\', 't')
	case r < 0x20:
		return append(dst, '\\', 'u', '0', '0', hexDigits[r>>4], hexDigits[r&0xF])
	case r == utf8.RuneError && len(raw) == 1:
		return append(dst, string(utf8.RuneError)...)
	}
	return raw
}

// appendPiece appends piece when it fits in limit and returns the space left.
func appendPiece(dst, piece []byte, limit int) ([]byte, int, bool) {
	if limit >= 0 {
		if len(piece) > limit {
			return dst, limit, false
		}
		limit -= len(piece)
	}
	return append(dst, piece...), limit, true
}

// EncodeResponse composes the fixed-shape result record
//
//	{"clientToken":"..","stdout":"..","stderr":"..","exitCode":N}
//
// and keeps it within limit bytes (limit <= 0 disables the bound). When the
// escaped fields do not fit, the client token, stderr and stdout are given
// the remaining space in that order and cut on an escape boundary, so the
// braces and keys are always intact.
//
// clientToken is taken as the raw content of the request's JSON string, as
// returned by ExtractField, and is echoed without re-escaping.
func EncodeResponse(clientToken string, stdout []byte, stderr string, exitCode int, limit int) []byte {
	const (
		keyToken  = `{"clientToken":"`
		keyStdout = `","stdout":"`
		keyStderr = `","stderr":"`
		keyExit   = `","exitCode":`
		closing   = `}`
	)

	code := strconv.Itoa(exitCode)
	fixed := len(keyToken) + len(keyStdout) + len(keyStderr) + len(keyExit) + len(closing) + len(code)

	budget := -1
	capacity := 0
	if limit > 0 {
		budget = limit - fixed
		if budget < 0 {
			budget = 0
		}
		capacity = limit
	}

	buf := make([]byte, 0, capacity)
	buf = append(buf, keyToken...)

	var token, errText []byte
	token, _ = appendQuotedContent(nil, []byte(clientToken), budget)
	budget = consume(budget, len(token))
	errText, _ = appendEscaped(nil, []byte(stderr), budget)
	budget = consume(budget, len(errText))

	buf = append(buf, token...)
	buf = append(buf, keyStdout...)
	buf, _ = appendEscaped(buf, stdout, budget)
	buf = append(buf, keyStderr...)
	buf = append(buf, errText...)
	buf = append(buf, keyExit...)
	buf = append(buf, code...)
	buf = append(buf, closing...)
	return buf
}

func consume(budget, used int) int {
	if budget < 0 {
		return budget
	}
	return budget - used
}
