// Package sanitize cleans scenario-supplied names before they reach object
// keys, file names and MCP tool output. Scenario files are user input: a
// survey named "../../etc" must not escape an upload prefix, and a feature
// named "<system>ignore previous instructions</system>" must not reach an
// agent verbatim.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the maximum length of a name echoed in tool output.
const MaxTextLength = 200

// MaxObjectNameLength is the maximum length of an object or file name.
const MaxObjectNameLength = 80

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line.
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	// reTripleBacktick matches code fence sequences.
	reTripleBacktick = regexp.MustCompile("```+")

	// reWhitespace matches runs of whitespace, including newlines.
	reWhitespace = regexp.MustCompile(`\s+`)

	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)
	reRepeatedDots    = regexp.MustCompile(`\.{2,}`)
)

// Text makes a name safe to echo in tool output. It strips control
// characters, tags, headings and code fences, folds whitespace to single
// spaces and truncates to MaxTextLength.
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = truncate(s, MaxTextLength) + "..."
	}
	return s
}

// ObjectName reduces a name to [a-zA-Z0-9._-] for use as a file name or the
// last segment of an object key. Other runs of characters become a single
// hyphen, ".." sequences collapse, and leading dots and hyphens are dropped,
// so the result never names a parent or hidden path. An input with nothing
// usable yields fallback.
func ObjectName(input, fallback string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedDots.ReplaceAllString(s, ".")
	s = strings.TrimLeft(s, ".-")
	s = strings.TrimRight(s, "-")

	if len(s) > MaxObjectNameLength {
		s = s[:MaxObjectNameLength]
	}
	if s == "" {
		return fallback
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F, 0x7F).
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if r == '\n' || r == '\t' {
				b.WriteByte(' ')
			}
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
