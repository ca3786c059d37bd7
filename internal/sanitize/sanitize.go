// Package sanitize cleans free text read from scenario containers before it
// is handed to MCP clients. Scenario names, scene labels and literal values
// come from files the agent did not author, so markup and control characters
// are stripped and lengths are bounded.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxLabelLength is the maximum rune length of a scenario name or scene label.
const MaxLabelLength = 120

// MaxTextLength is the maximum rune length of longer free text.
const MaxTextLength = 2000

var (
	// reXMLTag matches XML/HTML tags with attributes, self-closing tags and
	// processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches headings at the start of a line.
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	reTripleBacktick    = regexp.MustCompile("```+")
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
	reWhitespace        = regexp.MustCompile(`\s+`)
)

// Text sanitizes multi-line free text. Newlines and tabs survive; other
// control characters, tags, headings and code fences do not.
//
// The pipeline runs in this order:
//  1. Strip control characters (except \n, \t)
//  2. Strip XML/HTML tags
//  3. Replace markdown headings with list markers
//  4. Collapse code fences to a single backtick
//  5. Collapse 3+ newlines to 2
//  6. Truncate to MaxTextLength and trim
func Text(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(truncate(s, MaxTextLength))
}

// Label sanitizes a single-line name: all whitespace runs collapse to one
// space and the result is at most MaxLabelLength runes.
func Label(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input, false)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimLeft(strings.TrimSpace(s), "# ")
	return strings.TrimSpace(truncate(s, MaxLabelLength))
}

// stripControlChars removes ASCII control characters and DEL. With
// keepLayout, \n and \t are kept; otherwise they become spaces.
func stripControlChars(s string, keepLayout bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			if keepLayout {
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		case r < 0x20 || r == 0x7f:
		case r == utf8.RuneError:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
