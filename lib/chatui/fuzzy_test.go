// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"testing"

	"github.com/junegunn/fzf/src/util"
)

func TestFuzzyMatchBasic(t *testing.T) {
	result := FuzzyMatch("How do I reset the water filter", []rune("filter"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for substring match")
	}
	if len(result.Positions) == 0 {
		t.Fatal("expected non-empty match positions")
	}
}

func TestFuzzyMatchNonContiguous(t *testing.T) {
	// "wfl" matches "water filter" across word boundaries.
	result := FuzzyMatch("water filter", []rune("wfl"), nil)
	if result.Score <= 0 {
		t.Fatal("expected positive score for non-contiguous fuzzy match")
	}
}

func TestFuzzyMatchNoMatch(t *testing.T) {
	result := FuzzyMatch("How do I reset the water filter", []rune("xyzq"), nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for no match, got %d", result.Score)
	}
	if len(result.Positions) != 0 {
		t.Errorf("expected empty positions for no match, got %v", result.Positions)
	}
	if result.Matched() {
		t.Error("Matched() should be false for no match")
	}
}

func TestFuzzyMatchCaseInsensitive(t *testing.T) {
	result := FuzzyMatch("Reset The Water Filter", []rune("filter"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected case-insensitive match, got score=%d", result.Score)
	}
}

func TestFuzzyMatchUppercasePattern(t *testing.T) {
	// The wrapper lowercases the pattern, so caps on either side match.
	result := FuzzyMatch("error code e04", []rune("E04"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected match for 'E04' in 'error code e04', got score=%d", result.Score)
	}
}

func TestFuzzyMatchEmptyPattern(t *testing.T) {
	result := FuzzyMatch("anything", []rune{}, nil)
	if result.Score != 0 {
		t.Errorf("expected zero score for empty pattern, got %d", result.Score)
	}
}

func TestFuzzyMatchNormalizesAccents(t *testing.T) {
	result := FuzzyMatch("Café maintenance guide", []rune("cafe"), nil)
	if result.Score <= 0 {
		t.Fatalf("expected normalized match for 'cafe' in 'Café', got score=%d", result.Score)
	}
}

func TestFuzzyMatchPositionsInBounds(t *testing.T) {
	text := "hello world"
	result := FuzzyMatch(text, []rune("hw"), nil)
	if !result.Matched() {
		t.Fatal("expected match")
	}
	for _, position := range result.Positions {
		if position < 0 || position >= len([]rune(text)) {
			t.Errorf("position %d out of bounds for %q", position, text)
		}
	}
}

func TestFuzzyMatchSharedSlab(t *testing.T) {
	// A shared slab across calls must not corrupt results.
	slab := util.MakeSlab(100*1024, 2048)
	first := FuzzyMatch("water filter reset", []rune("filter"), slab)
	second := FuzzyMatch("firmware update steps", []rune("firmware"), slab)
	if first.Score <= 0 || second.Score <= 0 {
		t.Fatalf("expected both matches to score, got %d and %d", first.Score, second.Score)
	}
}
