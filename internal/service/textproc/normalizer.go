package textproc

import "regexp"

var (
	// Bracketed and braced spans are editorial noise. Matching is greedy within a line.
	annotationPattern = regexp.MustCompile(`\[.*\]|\{.*\}`)

	// Anything that is neither a word character nor whitespace, with the Unicode-aware
	// meaning of both classes.
	punctuationPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}\v\x{1c}-\x{1f}\x{85}]`)

	markupPattern = regexp.MustCompile(
		`<.*?>|&([a-z0-9]+|#[0-9]{1,6}|#x[0-9a-f]{1,6});|(?:\n|\t|\r|\x{a0}|\x{0c})`,
	)
)

// Normalize strips annotations, punctuation, markup, entities and control characters
// from extracted document text. Annotation and punctuation removal run before markup
// removal; model fits depend on that order.
func Normalize(raw string) string {
	cleaned := annotationPattern.ReplaceAllString(raw, "")
	cleaned = punctuationPattern.ReplaceAllString(cleaned, "")
	return markupPattern.ReplaceAllString(cleaned, "")
}
