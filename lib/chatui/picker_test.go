// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/docent/lib/session"
)

// testSummaries returns three session summaries in the store's
// newest-first order.
func testSummaries() []session.Summary {
	return []session.Summary{
		{
			ID:           "ses-4d0f21ab9e44",
			Title:        "How do I reset the water filter?",
			CreatedAt:    time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
			MessageCount: 6,
		},
		{
			ID:           "ses-77aa0c1d52be",
			Title:        "Warranty period for the pump",
			CreatedAt:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
			MessageCount: 2,
		},
		{
			ID:           "ses-c09e44f1a283",
			Title:        "Error code E04 on display",
			CreatedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC),
			MessageCount: 10,
		},
	}
}

func typeRunes(t *testing.T, model PickerModel, text string) PickerModel {
	t.Helper()
	for _, character := range text {
		updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
		model = updated.(PickerModel)
	}
	return model
}

func TestNewPickerShowsAllNewestFirst(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)

	if len(model.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(model.rows))
	}
	if model.rows[0].summary.ID != "ses-4d0f21ab9e44" {
		t.Errorf("first row should be the newest session, got %s", model.rows[0].summary.ID)
	}
	if model.rows[2].summary.ID != "ses-c09e44f1a283" {
		t.Errorf("last row should be the oldest session, got %s", model.rows[2].summary.ID)
	}
	if model.cursor != 0 {
		t.Errorf("initial cursor should be 0, got %d", model.cursor)
	}
}

func TestPickerTypeToFilter(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "warranty")

	if len(model.rows) != 1 {
		t.Fatalf("expected 1 matching row, got %d", len(model.rows))
	}
	if model.rows[0].summary.ID != "ses-77aa0c1d52be" {
		t.Errorf("expected the warranty session, got %s", model.rows[0].summary.ID)
	}
	if len(model.rows[0].titlePositions) == 0 {
		t.Error("expected title match positions for highlighting")
	}
}

func TestPickerFilterRanksBestFirst(t *testing.T) {
	summaries := []session.Summary{
		{
			ID:        "ses-000000000001",
			Title:     "p-something u-other m-more p-gone",
			UpdatedAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:        "ses-000000000002",
			Title:     "pump maintenance",
			UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	model := NewPicker(summaries, DarkTheme)
	model = typeRunes(t, model, "pump")

	if len(model.rows) < 1 {
		t.Fatal("expected at least one result")
	}
	// The contiguous match outranks the scattered one despite being
	// the older session.
	if model.rows[0].summary.ID != "ses-000000000002" {
		t.Errorf("expected contiguous match first, got %s", model.rows[0].summary.ID)
	}
}

func TestPickerFilterMatchesID(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "4d0f21")

	found := false
	for _, row := range model.rows {
		if row.summary.ID == "ses-4d0f21ab9e44" {
			found = true
			if len(row.idPositions) == 0 {
				t.Error("expected ID match positions for highlighting")
			}
		}
	}
	if !found {
		t.Error("expected the session to match by ID fragment")
	}
}

func TestPickerEnterSelects(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model = updated.(PickerModel)

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(PickerModel)

	chosen, ok := model.Choice()
	if !ok {
		t.Fatal("expected a choice after Enter")
	}
	if chosen.ID != "ses-77aa0c1d52be" {
		t.Errorf("expected second session selected, got %s", chosen.ID)
	}
	if cmd == nil {
		t.Error("Enter should quit the program")
	}
}

func TestPickerEnterWithNoMatchesKeepsRunning(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "zzzzqqqq")

	if len(model.rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(model.rows))
	}

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	model = updated.(PickerModel)

	if _, ok := model.Choice(); ok {
		t.Error("Enter with no matches should not select")
	}
	if cmd != nil {
		t.Error("Enter with no matches should not quit")
	}
}

func TestPickerEscClearsQueryThenCancels(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "warranty")

	// First Esc clears the query and restores all rows.
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(PickerModel)
	if model.query != "" {
		t.Errorf("expected query cleared, got %q", model.query)
	}
	if len(model.rows) != 3 {
		t.Errorf("expected all rows restored, got %d", len(model.rows))
	}
	if cmd != nil {
		t.Error("first Esc should not quit")
	}
	if model.Canceled() {
		t.Error("first Esc should not cancel")
	}

	// Second Esc cancels.
	updated, cmd = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	model = updated.(PickerModel)
	if !model.Canceled() {
		t.Error("second Esc should cancel")
	}
	if cmd == nil {
		t.Error("second Esc should quit the program")
	}
	if _, ok := model.Choice(); ok {
		t.Error("canceled picker should have no choice")
	}
}

func TestPickerBackspaceEditsQuery(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "er")

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	model = updated.(PickerModel)

	if model.query != "e" {
		t.Errorf("expected query %q, got %q", "e", model.query)
	}
}

func TestPickerCursorClampsAtEnds(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyUp})
	model = updated.(PickerModel)
	if model.cursor != 0 {
		t.Errorf("cursor should stay at 0, got %d", model.cursor)
	}

	for range 5 {
		updated, _ = model.Update(tea.KeyMsg{Type: tea.KeyDown})
		model = updated.(PickerModel)
	}
	if model.cursor != 2 {
		t.Errorf("cursor should clamp at last row, got %d", model.cursor)
	}
}

func TestPickerView(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)

	// Before receiving WindowSizeMsg, View renders nothing.
	if view := model.View(); view != "" {
		t.Errorf("expected empty view before sizing, got %q", view)
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 20})
	model = updated.(PickerModel)

	view := model.View()
	if !strings.Contains(view, "ses-4d0f21ab9e44") {
		t.Error("view should contain session IDs")
	}
	if !strings.Contains(view, "How do I reset the water filter?") {
		t.Error("view should contain session titles")
	}
	if !strings.Contains(view, "3/3") {
		t.Error("view should contain the match count")
	}
	if !strings.Contains(view, "Enter resume") {
		t.Error("view should contain the help line")
	}
}

func TestPickerViewNoSessions(t *testing.T) {
	model := NewPicker(nil, DarkTheme)

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	model = updated.(PickerModel)

	if !strings.Contains(model.View(), "no saved sessions") {
		t.Error("view should explain that no sessions exist")
	}
}

func TestPickerViewNoMatches(t *testing.T) {
	model := NewPicker(testSummaries(), DarkTheme)
	model = typeRunes(t, model, "zzzzqqqq")

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	model = updated.(PickerModel)

	if !strings.Contains(model.View(), "no sessions match") {
		t.Error("view should explain that the query matched nothing")
	}
}
