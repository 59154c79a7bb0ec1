// Package similarity provides the default edit-distance implementation of
// domain.Similarity. Swapping in a smarter scorer (vector similarity, etc.)
// only requires implementing the interface.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditDistance scores strings by normalized Levenshtein distance:
// 1 - distance/longer. Identical strings score 1, fully disjoint strings 0.
type EditDistance struct{}

func (EditDistance) Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
