// Package normalize converts raw issue text into a clean form suitable for
// embedding. Markup and code carry little semantic signal for duplicate
// detection and mostly add noise to the vectors.
package normalize

import (
	"regexp"
	"strings"

	"github.com/alexburke/dupfinder/internal/github"
)

var (
	fencedCode = regexp.MustCompile("```[\\s\\S]*?```")
	inlineCode = regexp.MustCompile("`[^`]+`")
	markupTag  = regexp.MustCompile(`<[^>]+>`)
	decoration = regexp.MustCompile(`[#*_~]`)
	// residue catches unpaired delimiters the passes above require pairs for,
	// e.g. an unclosed code fence or a bare "<".
	residue    = regexp.MustCompile("[`<>]")
	whitespace = regexp.MustCompile(`\s+`)
)

// Clean strips code blocks, inline code, markup tags, and markdown decoration
// from raw issue text and collapses whitespace. It is total: any input,
// including the empty string, produces a valid (possibly empty) result.
//
// Fenced code blocks are removed before tags and decoration so their contents
// never leak into the later passes.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	text := fencedCode.ReplaceAllString(raw, " ")
	text = inlineCode.ReplaceAllString(text, " ")
	text = markupTag.ReplaceAllString(text, " ")
	text = decoration.ReplaceAllString(text, " ")
	text = residue.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// Preprocess combines an issue's title and body and cleans the result.
// The title goes first so it is never crowded out by a long body.
func Preprocess(issue github.Issue) string {
	return Clean(issue.Title + ". " + issue.Body)
}

// PreprocessBatch preprocesses multiple issues, preserving input order.
func PreprocessBatch(issues []github.Issue) []string {
	texts := make([]string, len(issues))
	for i, issue := range issues {
		texts[i] = Preprocess(issue)
	}
	return texts
}
