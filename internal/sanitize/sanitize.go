// Package sanitize inspects untrusted strings for characters the catalog store cannot
// persist and produces cleaned copies plus a list of what was found.
package sanitize

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies a problematic character.
type Kind string

const (
	// KindNullByte is U+0000.
	KindNullByte Kind = "null byte"
	// KindControl is a C0 control or DEL other than tab, newline, and carriage return.
	KindControl Kind = "control character"
	// KindExtendedControl is a C1 control (0x80-0x9F) as a rune or a raw byte.
	KindExtendedControl Kind = "extended control character"
	// KindInvalidUTF8 is any other byte that does not start a valid UTF-8 sequence.
	KindInvalidUTF8 Kind = "invalid utf-8 byte"
)

// Finding is one problematic character and its byte offset in the raw input.
type Finding struct {
	Kind   Kind
	Offset int
	Value  rune
}

func (f Finding) String() string {
	return fmt.Sprintf("%s 0x%02X at %d", f.Kind, f.Value, f.Offset)
}

// Report is the result of inspecting one string.
type Report struct {
	Sanitized string
	Findings  []Finding
}

// Clean reports whether nothing problematic was found.
func (r Report) Clean() bool {
	return len(r.Findings) == 0
}

// Inspect scans raw and returns a sanitized copy with every problematic character
// removed and surrounding whitespace trimmed.
func Inspect(raw string) Report {
	var (
		b        strings.Builder
		findings []Finding
	)
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		if r == utf8.RuneError && size == 1 {
			value := rune(raw[i])
			kind := KindInvalidUTF8
			if value >= 0x80 && value <= 0x9F {
				kind = KindExtendedControl
			}
			findings = append(findings, Finding{Kind: kind, Offset: i, Value: value})
			i += size
			continue
		}
		if kind, bad := classify(r); bad {
			findings = append(findings, Finding{Kind: kind, Offset: i, Value: r})
		} else {
			b.WriteRune(r)
		}
		i += size
	}
	return Report{
		Sanitized: strings.TrimSpace(b.String()),
		Findings:  findings,
	}
}

func classify(r rune) (Kind, bool) {
	switch {
	case r == 0:
		return KindNullByte, true
	case r == '\n' || r == '\r' || r == '\t':
		return "", false
	case r < 0x20 || r == 0x7F:
		return KindControl, true
	case r >= 0x80 && r <= 0x9F:
		return KindExtendedControl, true
	default:
		return "", false
	}
}

// Describe renders findings for a named field, or "" when there are none.
func Describe(field string, findings []Finding) string {
	if len(findings) == 0 {
		return ""
	}
	parts := make([]string, 0, len(findings))
	for _, f := range findings {
		parts = append(parts, f.String())
	}
	return field + ": " + strings.Join(parts, ", ")
}

// ForStorage makes s safe for a bounded diagnostic column: null bytes become '?',
// invalid UTF-8 is replaced, and the result is cut to at most limit runes.
func ForStorage(s string, limit int) string {
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", "?"), "?")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
