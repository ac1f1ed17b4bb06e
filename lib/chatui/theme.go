// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for docent's terminal output. All
// colors use lipgloss ANSI 256-color codes for broad terminal
// compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Accent is used for headings, the user turn label, and other
	// elements that should stand out from body text.
	Accent lipgloss.Color

	// ErrorText marks failed turns.
	ErrorText lipgloss.Color

	// BorderColor is used for rules and table separators.
	BorderColor lipgloss.Color

	// Selected row in the session picker.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// MatchHighlight colors the characters a picker filter matched.
	MatchHighlight lipgloss.Color

	// Status bar.
	StatusForeground lipgloss.Color
	StatusBackground lipgloss.Color

	// CodeStyle names the chroma style used for fenced code blocks.
	CodeStyle string
}

// DarkTheme is the built-in scheme for dark-background terminals, the
// common case for development environments and tmux sessions.
var DarkTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	Accent:      lipgloss.Color("75"),  // blue
	ErrorText:   lipgloss.Color("196"), // bright red
	BorderColor: lipgloss.Color("240"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),
	MatchHighlight:     lipgloss.Color("220"), // amber

	StatusForeground: lipgloss.Color("250"),
	StatusBackground: lipgloss.Color("236"),

	CodeStyle: "monokai",
}

// LightTheme is the scheme for light-background terminals.
var LightTheme = Theme{
	NormalText: lipgloss.Color("235"),
	FaintText:  lipgloss.Color("243"),

	Accent:      lipgloss.Color("26"),  // blue
	ErrorText:   lipgloss.Color("124"), // dark red
	BorderColor: lipgloss.Color("250"),

	SelectedBackground: lipgloss.Color("253"),
	SelectedForeground: lipgloss.Color("232"),
	MatchHighlight:     lipgloss.Color("130"), // brown-orange

	StatusForeground: lipgloss.Color("238"),
	StatusBackground: lipgloss.Color("253"),

	CodeStyle: "friendly",
}

// ThemeByName resolves a configured theme name. Unknown names fall
// back to the dark theme.
func ThemeByName(name string) Theme {
	if name == "light" {
		return LightTheme
	}
	return DarkTheme
}
