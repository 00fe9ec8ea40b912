package fetch

import "regexp"

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	ellipsisRE   = regexp.MustCompile(`\.{3,}`)
	bangsRE      = regexp.MustCompile(`!{2,}`)
	questionsRE  = regexp.MustCompile(`\?{2,}`)
)

// CleanText normalizes extracted page text: runs of whitespace collapse
// to a single space, and runs of trailing punctuation collapse to their
// canonical form ("...", "!", "?").
func CleanText(text string) string {
	text = whitespaceRE.ReplaceAllString(text, " ")
	text = ellipsisRE.ReplaceAllString(text, "...")
	text = bangsRE.ReplaceAllString(text, "!")
	text = questionsRE.ReplaceAllString(text, "?")
	return text
}
