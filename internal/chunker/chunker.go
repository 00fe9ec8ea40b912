// Package chunker splits free-form text into bounded-size, overlapping
// segments suitable for embedding-based retrieval.
//
// Splitting is separator-driven: the policy carries a priority list of
// separators, most specific first, and the splitter recursively falls
// through the list until every chunk fits the target size. Consecutive
// chunks share a configurable overlap at their boundary so context
// survives a cut.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidPolicy is returned when a policy is constructed with an
// impossible parameter combination. It is a programmer error and the
// only error in this package callers are expected to propagate.
var ErrInvalidPolicy = errors.New("invalid chunking policy")

// DefaultSeparators is the priority list used when a policy does not
// supply its own: paragraphs, lines, sentence ends, clause breaks, words,
// and finally single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// Policy controls chunk sizing. Immutable once constructed; build one
// with NewPolicy.
type Policy struct {
	targetSize int
	overlap    int
	separators []string
}

// NewPolicy validates and builds a chunking policy. Sizes are in
// characters (runes). separators may be nil to use DefaultSeparators;
// the list always ends with the empty string so splitting can fall back
// to character level.
func NewPolicy(targetSize, overlap int, separators []string) (Policy, error) {
	if targetSize <= 0 {
		return Policy{}, fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidPolicy, targetSize)
	}
	if overlap < 0 {
		return Policy{}, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidPolicy, overlap)
	}
	if overlap >= targetSize {
		return Policy{}, fmt.Errorf("%w: overlap %d must be smaller than target size %d", ErrInvalidPolicy, overlap, targetSize)
	}

	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	seps := make([]string, len(separators))
	copy(seps, separators)
	if seps[len(seps)-1] != "" {
		seps = append(seps, "")
	}

	return Policy{targetSize: targetSize, overlap: overlap, separators: seps}, nil
}

// TargetSize returns the maximum chunk length in characters.
func (p Policy) TargetSize() int { return p.targetSize }

// Overlap returns the number of characters consecutive chunks share.
func (p Policy) Overlap() int { return p.overlap }

// Separators returns a copy of the separator priority list.
func (p Policy) Separators() []string {
	out := make([]string, len(p.separators))
	copy(out, p.separators)
	return out
}

// Split divides text into chunks of at most p.TargetSize() characters.
// Chunk boundaries prefer the earliest separator in the priority list
// that occurs in the text; pieces too large for the chosen separator are
// re-split with the remaining separators. Empty and whitespace-only
// chunks are dropped, so empty input yields an empty result.
func (p Policy) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := splitWith(text, p.separators, p.targetSize, p.overlap)
	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		if strings.TrimSpace(c) != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// Split is the standalone form of Policy.Split for callers that only
// need chunking.
func Split(text string, p Policy) []string {
	return p.Split(text)
}

// splitWith splits text on the first separator in seps that occurs in
// it, then greedily packs the pieces into chunks of at most target
// runes. When a chunk is emitted, the next buffer is seeded with the
// emitted chunk's trailing overlap runes. A piece that alone exceeds
// target is re-split with the separators after the chosen one, and the
// resulting sub-chunks are spliced into the output in place.
func splitWith(text string, seps []string, target, overlap int) []string {
	sep, rest := pickSeparator(text, seps)
	pieces := splitKeeping(text, sep)

	var chunks []string
	var buf string
	bufLen := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)

		if n > target {
			// The piece does not fit even in an empty buffer: flush, then
			// re-split it with the remaining separators and splice the
			// sub-chunks in place. The list always ends with "", whose
			// character pieces pack into target-size windows advancing
			// every target-overlap characters, so the recursion bottoms
			// out in a hard cut.
			if bufLen > 0 {
				chunks = append(chunks, buf)
				buf, bufLen = "", 0
			}
			chunks = append(chunks, splitWith(piece, rest, target, overlap)...)
			continue
		}

		if bufLen == 0 || bufLen+n <= target {
			buf += piece
			bufLen += n
			continue
		}

		chunks = append(chunks, buf)
		seed := tail(buf, overlap)
		// Shrink the seed if the full overlap would push the new buffer
		// past the target.
		if sl := utf8.RuneCountInString(seed); sl+n > target {
			seed = tail(seed, target-n)
		}
		buf = seed + piece
		bufLen = utf8.RuneCountInString(buf)
	}

	if bufLen > 0 {
		chunks = append(chunks, buf)
	}
	return chunks
}

// pickSeparator returns the first separator that occurs in text, along
// with the separators after it. Priority order alone decides; frequency
// does not. When none of the explicit separators occur, the empty string
// (split between every character) is chosen.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, s := range seps {
		if s == "" {
			return "", nil
		}
		if strings.Contains(text, s) {
			return s, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeeping splits text on sep, re-appending the separator to every
// piece but the last so that concatenating the pieces reproduces text
// exactly. The empty separator splits into individual characters.
func splitKeeping(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part == "" {
			continue
		}
		pieces = append(pieces, part)
	}
	return pieces
}

// tail returns the last n runes of text.
func tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
