package lexical

import (
	"context"
	"strings"
	"unicode"

	"github.com/hupe1980/vecfuse/model"
)

// DocRef identifies a text-bearing row.
type DocRef struct {
	VertexType model.VertexType
	Row        uint32
}

// Hit is one keyword search result.
type Hit struct {
	Ref   DocRef
	Score float64
}

// Index is the interface for a lexical search index.
type Index interface {
	// Add indexes text for ref.
	Add(ref DocRef, text string)
	// Search returns up to k matches, best first.
	Search(ctx context.Context, text string, k int) ([]Hit, error)
	// Len returns the number of indexed documents.
	Len() int
}

// Tokenize lowercases text and splits it on everything except letters, digits,
// '-' and '_'. Separators are trimmed from token edges so "(INV-42)." yields "inv-42".
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-_")
		if f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

// IsIDLike reports whether token looks like an identifier: it mixes digits with
// letters or separators, or is a run of at least four digits.
func IsIDLike(token string) bool {
	var digits, letters, seps int
	for _, r := range token {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		case r == '-' || r == '_':
			seps++
		}
	}
	if digits == 0 {
		return false
	}
	if letters == 0 && seps == 0 {
		return digits >= 4
	}
	return true
}

// HasIDLikeToken reports whether any token of text is ID-like.
func HasIDLikeToken(text string) bool {
	for _, t := range Tokenize(text) {
		if IsIDLike(t) {
			return true
		}
	}
	return false
}
