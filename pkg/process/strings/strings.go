// Package strings provides text cleanup helpers for generated output, along
// with adapters that plug them into a pipeline's post-processing stages.
package strings

import (
	"context"
	"regexp"
	stdstrings "strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wehubfusion/Daedalus/pkg/completion"
)

var (
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	blankLines    = regexp.MustCompile(`\n{3,}`)
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\n(.*?)\n?```$")
)

// Trim removes whitespace or provided cutset from both ends.
// If cutset is empty, it trims unicode whitespace.
func Trim(s, cutset string) string {
	if cutset == "" {
		return stdstrings.TrimSpace(s)
	}
	return stdstrings.Trim(s, cutset)
}

// CollapseWhitespace squeezes runs of spaces and tabs into single spaces and
// limits consecutive blank lines to one.
func CollapseWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	return blankLines.ReplaceAllString(s, "\n\n")
}

// NormalizeNewlines converts CRLF and CR line endings to LF.
func NormalizeNewlines(s string) string {
	s = stdstrings.ReplaceAll(s, "\r\n", "\n")
	return stdstrings.ReplaceAll(s, "\r", "\n")
}

// StripCodeFence removes a surrounding markdown code fence when the whole
// text is one fenced block, which models frequently emit around structured
// output.
func StripCodeFence(s string) string {
	trimmed := stdstrings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return s
}

// ToUpper converts all characters to upper case.
func ToUpper(s string) string { return stdstrings.ToUpper(s) }

// ToLower converts all characters to lower case.
func ToLower(s string) string { return stdstrings.ToLower(s) }

// TitleCase capitalizes the first letter of each word using Unicode-aware rules.
func TitleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// Capitalize capitalizes the first letter of the string (rune-safe), leaves others unchanged.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return stdstrings.ToUpper(string(r)) + s[size:]
}

// Truncate shortens the string to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Length returns the number of runes (user-perceived characters) in the string.
func Length(s string) int { return utf8.RuneCountInString(s) }

// ThenGenerated returns a post-processing callback that rewrites each
// completion's generated text with the given transform.
func ThenGenerated(transform func(string) string) completion.ThenCallback {
	return func(ctx context.Context, c *completion.Completion) (*completion.Completion, error) {
		replaced := c.Clone()
		replaced.Generated = transform(c.Generated)
		return replaced, nil
	}
}

// MapGenerated returns a list-level callback applying the given transform to
// every completion's generated text.
func MapGenerated(transform func(string) string) completion.MapCallback {
	return func(ctx context.Context, completions []*completion.Completion) ([]*completion.Completion, error) {
		replaced := make([]*completion.Completion, len(completions))
		for i, c := range completions {
			clone := c.Clone()
			clone.Generated = transform(c.Generated)
			replaced[i] = clone
		}
		return replaced, nil
	}
}

// CleanGenerated chains the usual cleanup applied to raw model output.
// Newlines are normalized first so CRLF output still matches the fence
// pattern.
func CleanGenerated() completion.ThenCallback {
	return ThenGenerated(func(s string) string {
		return stdstrings.TrimSpace(StripCodeFence(NormalizeNewlines(s)))
	})
}
