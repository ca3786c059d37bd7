package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain", input: "crossing", want: "crossing"},
		{name: "whitespace collapses", input: "  Crossing  at\tnoon\n", want: "Crossing at noon"},
		{name: "tags stripped", input: "<b>ego</b> lane", want: "ego lane"},
		{name: "heading marker stripped", input: "# Override", want: "Override"},
		{name: "control chars removed", input: "a\x00b\x1bc", want: "abc"},
		{name: "processing instruction", input: `<?xml version="1.0"?>scene`, want: "scene"},
		{name: "code fence", input: "```x```", want: "`x`"},
		{name: "unicode kept", input: "Kreuzung Süd", want: "Kreuzung Süd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.input); got != tt.want {
				t.Errorf("Label(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLabel_Truncates(t *testing.T) {
	got := Label(strings.Repeat("ü", MaxLabelLength+50))
	if n := utf8.RuneCountInString(got); n != MaxLabelLength {
		t.Errorf("Label() length = %d runes, want %d", n, MaxLabelLength)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "newlines kept", input: "line one\nline two", want: "line one\nline two"},
		{name: "system tag", input: "<system>evil</system>", want: "evil"},
		{name: "heading becomes list marker", input: "# Title\nbody", want: "- Title\nbody"},
		{name: "excess newlines", input: "a\n\n\n\nb", want: "a\n\nb"},
		{name: "code fence", input: "```go\nx\n```", want: "`go\nx\n`"},
		{name: "null byte", input: "Normal\x00<system>hidden</system>", want: "Normalhidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestText_Truncates(t *testing.T) {
	got := Text(strings.Repeat("a", MaxTextLength+1))
	if len(got) != MaxTextLength {
		t.Errorf("Text() length = %d, want %d", len(got), MaxTextLength)
	}
}
