// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

func init() {
	// The matcher's character-class tables are built by Init, not by
	// package initialization. "default" selects the standard scoring
	// scheme.
	algo.Init("default")
}

// FuzzyResult is the outcome of matching a pattern against one
// candidate string. A zero Score means no match. Positions are the
// rune indexes of the matched characters, for highlighting.
type FuzzyResult struct {
	Score     int
	Positions []int
}

// Matched reports whether the candidate matched at all.
func (r FuzzyResult) Matched() bool {
	return r.Score > 0
}

// FuzzyMatch scores pattern against text using fzf's V2 algorithm:
// smart scoring that rewards matches at word boundaries and
// consecutive runs. Matching is case-insensitive with unicode
// normalization, so "cafe" finds "Café".
//
// The slab is scratch memory the matcher reuses across calls; pass
// the same slab for a whole filtering pass. A nil slab allocates per
// call, which is fine for one-off matches.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{}
	}

	// The algorithm expects a case-insensitive pattern to be
	// lowercased by the caller.
	lowered := make([]rune, len(pattern))
	for index, character := range pattern {
		lowered[index] = unicode.ToLower(character)
	}

	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(false, true, true, &chars, lowered, true, slab)
	if result.Start < 0 {
		return FuzzyResult{}
	}

	matched := FuzzyResult{Score: result.Score}
	if positions != nil {
		matched.Positions = *positions
	}
	return matched
}
