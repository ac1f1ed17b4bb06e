// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/junegunn/fzf/src/util"

	"github.com/bureau-foundation/docent/lib/session"
)

// Column widths for the picker table. The title column fills remaining
// space; all others are fixed.
const (
	// pickerColumnID fits a session ID ("ses-" + 12 hex digits) plus
	// a two-space gap.
	pickerColumnID = 18

	// pickerColumnMeta fits the right-aligned metadata suffix:
	// message count and last-update timestamp.
	pickerColumnMeta = 28

	// pickerChromeLines is the fixed vertical overhead around the
	// session list: the query prompt above, the help line below.
	pickerChromeLines = 2
)

// pickerTimeFormat renders UpdatedAt compactly. Sessions cluster in
// recent days, so minute precision matters more than the year.
const pickerTimeFormat = "Jan 02 15:04"

// PickerKeyMap defines the key bindings for the session picker. All
// printable characters feed the filter query, so navigation sticks to
// arrows and control chords.
type PickerKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Select   key.Binding
	Cancel   key.Binding
	Clear    key.Binding
}

// DefaultPickerKeyMap is the built-in binding set.
var DefaultPickerKeyMap = PickerKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+p"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+n"),
		key.WithHelp("↓", "down"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("PgUp", "page up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("PgDn", "page down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "resume"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("Esc", "cancel"),
	),
	Clear: key.NewBinding(
		key.WithKeys("ctrl+u"),
		key.WithHelp("C-u", "clear query"),
	),
}

// pickerRow is one session after filtering: the summary plus the
// fuzzy-match evidence used for ordering and highlighting.
type pickerRow struct {
	summary        session.Summary
	score          int
	titlePositions []int
	idPositions    []int
}

// PickerModel is a bubbletea model that lets the user choose a saved
// session to resume. Sessions list newest first; typing narrows them
// with fuzzy matching over both the title and the session ID, best
// match first. Enter selects, Esc cancels (or clears the query if one
// is typed).
type PickerModel struct {
	summaries []session.Summary
	rows      []pickerRow

	query  string
	cursor int
	scroll int

	width  int
	height int
	ready  bool

	theme Theme
	keys  PickerKeyMap

	// slab is scratch memory shared across fuzzy matches within one
	// filtering pass.
	slab *util.Slab

	chosen   *session.Summary
	canceled bool
}

// NewPicker creates a picker over the given summaries. The caller
// provides them in the order an empty query should show, which for
// session stores is newest first.
func NewPicker(summaries []session.Summary, theme Theme) PickerModel {
	model := PickerModel{
		summaries: summaries,
		theme:     theme,
		keys:      DefaultPickerKeyMap,
		slab:      util.MakeSlab(100*1024, 2048),
	}
	model.applyQuery()
	return model
}

// Choice returns the selected session after the program exits. The
// second result is false when the user canceled or no session matched.
func (model PickerModel) Choice() (session.Summary, bool) {
	if model.chosen == nil {
		return session.Summary{}, false
	}
	return *model.chosen, true
}

// Canceled reports whether the user dismissed the picker.
func (model PickerModel) Canceled() bool {
	return model.canceled
}

func (model PickerModel) Init() tea.Cmd {
	return nil
}

func (model PickerModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Cancel):
			// Esc with a query clears it; Esc on an empty query (and
			// ctrl+c always) dismisses the picker.
			if message.Type == tea.KeyEsc && model.query != "" {
				model.query = ""
				model.applyQuery()
				return model, nil
			}
			model.canceled = true
			return model, tea.Quit

		case key.Matches(message, model.keys.Select):
			if model.cursor < len(model.rows) {
				chosen := model.rows[model.cursor].summary
				model.chosen = &chosen
				return model, tea.Quit
			}
			return model, nil

		case key.Matches(message, model.keys.Up):
			if model.cursor > 0 {
				model.cursor--
				model.ensureCursorVisible()
			}

		case key.Matches(message, model.keys.Down):
			if model.cursor < len(model.rows)-1 {
				model.cursor++
				model.ensureCursorVisible()
			}

		case key.Matches(message, model.keys.PageUp):
			model.cursor -= model.listHeight()
			if model.cursor < 0 {
				model.cursor = 0
			}
			model.ensureCursorVisible()

		case key.Matches(message, model.keys.PageDown):
			model.cursor += model.listHeight()
			if model.cursor > len(model.rows)-1 {
				model.cursor = len(model.rows) - 1
			}
			if model.cursor < 0 {
				model.cursor = 0
			}
			model.ensureCursorVisible()

		case key.Matches(message, model.keys.Clear):
			if model.query != "" {
				model.query = ""
				model.applyQuery()
			}

		case message.Type == tea.KeyBackspace:
			if model.query != "" {
				runes := []rune(model.query)
				model.query = string(runes[:len(runes)-1])
				model.applyQuery()
			}

		case message.Type == tea.KeyRunes || message.Type == tea.KeySpace:
			model.query += string(message.Runes)
			model.applyQuery()
		}

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.ensureCursorVisible()
	}

	return model, nil
}

// applyQuery refilters and reorders the rows for the current query
// and resets the cursor to the best match.
func (model *PickerModel) applyQuery() {
	pattern := []rune(model.query)
	model.rows = model.rows[:0]

	for _, summary := range model.summaries {
		if len(pattern) == 0 {
			model.rows = append(model.rows, pickerRow{summary: summary})
			continue
		}

		titleMatch := FuzzyMatch(summary.Title, pattern, model.slab)
		idMatch := FuzzyMatch(summary.ID, pattern, model.slab)
		if !titleMatch.Matched() && !idMatch.Matched() {
			continue
		}

		row := pickerRow{
			summary:        summary,
			score:          titleMatch.Score,
			titlePositions: titleMatch.Positions,
			idPositions:    idMatch.Positions,
		}
		if idMatch.Score > row.score {
			row.score = idMatch.Score
		}
		model.rows = append(model.rows, row)
	}

	if len(pattern) > 0 {
		// Best match first; equally scored sessions keep the
		// newest-first store order.
		sort.SliceStable(model.rows, func(i, j int) bool {
			return model.rows[i].score > model.rows[j].score
		})
	}

	model.cursor = 0
	model.scroll = 0
}

// listHeight is the number of session rows that fit on screen.
func (model *PickerModel) listHeight() int {
	height := model.height - pickerChromeLines
	if height < 1 {
		height = 1
	}
	return height
}

func (model *PickerModel) ensureCursorVisible() {
	visible := model.listHeight()
	if model.cursor < model.scroll {
		model.scroll = model.cursor
	}
	if model.cursor >= model.scroll+visible {
		model.scroll = model.cursor - visible + 1
	}
	if model.scroll < 0 {
		model.scroll = 0
	}
}

func (model PickerModel) View() string {
	if !model.ready {
		return ""
	}

	var view strings.Builder
	view.WriteString(model.renderPrompt())
	view.WriteString("\n")

	visible := model.listHeight()
	end := model.scroll + visible
	if end > len(model.rows) {
		end = len(model.rows)
	}

	if len(model.rows) == 0 {
		empty := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		if len(model.summaries) == 0 {
			view.WriteString(empty.Render(" no saved sessions"))
		} else {
			view.WriteString(empty.Render(" no sessions match"))
		}
		view.WriteString("\n")
	}

	for index := model.scroll; index < end; index++ {
		view.WriteString(model.renderRow(model.rows[index], index == model.cursor))
		view.WriteString("\n")
	}

	// Pad so the help line stays pinned to the bottom.
	rendered := end - model.scroll
	if rendered == 0 {
		rendered = 1
	}
	for line := rendered; line < visible; line++ {
		view.WriteString("\n")
	}

	view.WriteString(model.renderHelp())
	return view.String()
}

// renderPrompt renders the query line: a prompt marker, the typed
// query with a block cursor, and the match count.
func (model PickerModel) renderPrompt() string {
	accent := lipgloss.NewStyle().Foreground(model.theme.Accent).Bold(true)
	normal := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	count := fmt.Sprintf(" %d/%d", len(model.rows), len(model.summaries))
	prompt := accent.Render("> ") + normal.Render(model.query) + accent.Render("▎")

	gap := model.width - lipgloss.Width(prompt) - lipgloss.Width(count)
	if gap < 1 {
		gap = 1
	}
	return prompt + strings.Repeat(" ", gap) + faint.Render(count)
}

// renderRow renders one session line:
//
//	ses-9f3c21ab44de  How do I reset the filter?         12 msgs  Jan 02 15:04
func (model PickerModel) renderRow(row pickerRow, selected bool) string {
	titleWidth := model.width - 1 - pickerColumnID - pickerColumnMeta
	if titleWidth < 10 {
		titleWidth = 10
	}

	title := row.summary.Title
	if title == "" {
		title = "(untitled)"
	}
	if lipgloss.Width(title) > titleWidth {
		title = ansi.Truncate(title, titleWidth-1, "…")
	}

	meta := fmt.Sprintf("%3d msgs  %s",
		row.summary.MessageCount,
		row.summary.UpdatedAt.Local().Format(pickerTimeFormat))

	if selected {
		base := lipgloss.NewStyle().
			Background(model.theme.SelectedBackground).
			Foreground(model.theme.SelectedForeground)
		highlight := base.Bold(true).Underline(true)

		line := " " +
			padRight(highlightRunes(row.summary.ID, row.idPositions, base, highlight), pickerColumnID) +
			padRight(highlightRunes(title, row.titlePositions, base, highlight), titleWidth) +
			base.Render(meta)
		return base.Width(model.width).MaxWidth(model.width).Render(line)
	}

	idStyle := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	titleStyle := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	highlight := lipgloss.NewStyle().
		Foreground(model.theme.MatchHighlight).
		Bold(true)

	return " " +
		padRight(highlightRunes(row.summary.ID, row.idPositions, idStyle, highlight), pickerColumnID) +
		padRight(highlightRunes(title, row.titlePositions, titleStyle, highlight), titleWidth) +
		idStyle.Render(meta)
}

func (model PickerModel) renderHelp() string {
	help := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	return help.Render(" type to filter · ↑/↓ move · Enter resume · Esc cancel")
}

// padRight pads styled text with spaces to the given visible width.
// Styled text cannot use lipgloss.Style.Width because the input
// already contains ANSI sequences.
func padRight(text string, width int) string {
	gap := width - lipgloss.Width(text)
	if gap <= 0 {
		return text
	}
	return text + strings.Repeat(" ", gap)
}

// highlightRunes renders text with the characters at the given rune
// positions emphasized. Consecutive same-style runs batch into one
// Render call to keep the ANSI output compact. Positions index the
// original untruncated text; indexes past the rendered length are
// ignored.
func highlightRunes(text string, positions []int, base, highlight lipgloss.Style) string {
	if len(positions) == 0 {
		return base.Render(text)
	}

	positionSet := make(map[int]bool, len(positions))
	for _, position := range positions {
		positionSet[position] = true
	}

	runes := []rune(text)
	var result strings.Builder
	runStart := 0
	highlighted := positionSet[0]

	for index := 1; index <= len(runes); index++ {
		current := index < len(runes) && positionSet[index]
		if current != highlighted || index == len(runes) {
			chunk := string(runes[runStart:index])
			if highlighted {
				result.WriteString(highlight.Render(chunk))
			} else {
				result.WriteString(base.Render(chunk))
			}
			runStart = index
			highlighted = current
		}
	}

	return result.String()
}
