// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/docent/lib/assistant"
	"github.com/bureau-foundation/docent/lib/llm/history"
)

// chatChromeLines is the vertical overhead around the transcript
// viewport: the status bar and the input line.
const chatChromeLines = 2

// DeltaSink returns a callback suitable for the assistant's OnDelta
// hook and the channel the chat model drains. The callback never
// blocks the turn: when the channel is full the delta is dropped,
// which only degrades the live preview because the final answer
// arrives whole when the turn completes.
func DeltaSink(capacity int) (func(string), <-chan string) {
	channel := make(chan string, capacity)
	sink := func(text string) {
		select {
		case channel <- text:
		default:
		}
	}
	return sink, channel
}

// ChatKeyMap defines the key bindings for the chat view. Printable
// characters belong to the input line, so transcript scrolling sticks
// to page keys and the mouse wheel.
type ChatKeyMap struct {
	Submit     key.Binding
	Quit       key.Binding
	CancelTurn key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
}

// DefaultChatKeyMap is the built-in binding set.
var DefaultChatKeyMap = ChatKeyMap{
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("Enter", "ask"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
	CancelTurn: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "cancel turn"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup", "ctrl+u"),
		key.WithHelp("PgUp", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown", "ctrl+d"),
		key.WithHelp("PgDn", "scroll down"),
	),
}

// ChatConfig wires a chat model to a running assistant session.
type ChatConfig struct {
	// Orchestrator runs the turns. Required.
	Orchestrator *assistant.Orchestrator

	// Deltas carries streamed answer text from the orchestrator's
	// OnDelta hook (see [DeltaSink]). Nil disables the live preview;
	// answers then appear whole when each turn completes.
	Deltas <-chan string

	// Estimator, when set, feeds the context-usage figure in the
	// status bar.
	Estimator *history.CharEstimator

	// Model is the display name of the completion model.
	Model string

	// SessionID labels the status bar. Empty for unsaved sessions.
	SessionID string

	// OnTurnStart runs as a question is submitted, before the turn's
	// first completion call.
	OnTurnStart func(question string)

	// OnTurn runs after each successful turn, on the UI goroutine.
	// The session layer uses it to checkpoint the conversation.
	OnTurn func(answer *assistant.Answer)

	// OnTurnError runs when a turn fails, with the error shown in the
	// transcript.
	OnTurnError func(err error)

	// Markdown enables markdown rendering of answers. Plain text
	// otherwise.
	Markdown bool

	// Context bounds all turns. Nil means context.Background.
	Context context.Context

	Theme Theme
}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryError
)

// chatEntry is one rendered block of the transcript: a question, an
// answer with its grounding sources, or a failed turn.
type chatEntry struct {
	kind    entryKind
	text    string
	queries []string
	sources []sourceRef
}

// sourceRef is one grounding source annotation under an answer.
type sourceRef struct {
	source string
	score  float64
}

type deltaMsg struct {
	text string
}

type turnDoneMsg struct {
	answer *assistant.Answer
	err    error
}

// SessionLabelMsg sets the status bar's session label. The session
// layer sends it once the session record exists, which for new
// conversations is after the first completed turn.
type SessionLabelMsg struct {
	ID string
}

// ChatModel is the interactive conversation view: a scrollback
// viewport over the transcript, an input line, and a status bar. One
// question runs at a time; while it runs, streamed deltas render as a
// live preview and Esc cancels the turn.
type ChatModel struct {
	orchestrator *assistant.Orchestrator
	deltas       <-chan string
	estimator    *history.CharEstimator
	modelName    string
	sessionID    string
	onTurnStart  func(question string)
	onTurn       func(answer *assistant.Answer)
	onTurnError  func(err error)
	markdown     bool
	parent       context.Context

	theme Theme
	keys  ChatKeyMap

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	entries []chatEntry

	// busy is true while a turn is in flight. live accumulates the
	// streamed answer text for the in-progress entry. Plain string
	// concatenation because the model is copied on every Update.
	busy       bool
	live       string
	turnCancel context.CancelFunc

	width  int
	height int
	ready  bool
}

// NewChat creates a chat model over an orchestrator. Existing
// transcript entries are not replayed into the scrollback; resumed
// sessions start with the context loaded but the screen fresh.
func NewChat(config ChatConfig) ChatModel {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "ask a question"
	input.Focus()

	indicator := spinner.New()
	indicator.Spinner = spinner.Line
	indicator.Style = lipgloss.NewStyle().Foreground(config.Theme.Accent)

	parent := config.Context
	if parent == nil {
		parent = context.Background()
	}

	return ChatModel{
		orchestrator: config.Orchestrator,
		deltas:       config.Deltas,
		estimator:    config.Estimator,
		modelName:    config.Model,
		sessionID:    config.SessionID,
		onTurnStart:  config.OnTurnStart,
		onTurn:       config.OnTurn,
		onTurnError:  config.OnTurnError,
		markdown:     config.Markdown,
		parent:       parent,
		theme:        config.Theme,
		keys:         DefaultChatKeyMap,
		viewport:     viewport.New(0, 0),
		input:        input,
		spinner:      indicator,
	}
}

func (model ChatModel) Init() tea.Cmd {
	commands := []tea.Cmd{textinput.Blink}
	if model.deltas != nil {
		commands = append(commands, waitForDelta(model.deltas))
	}
	return tea.Batch(commands...)
}

// waitForDelta blocks until the orchestrator streams another chunk of
// answer text, then delivers it as a deltaMsg.
func waitForDelta(deltas <-chan string) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-deltas
		if !ok {
			return nil
		}
		return deltaMsg{text: text}
	}
}

// runTurn executes one question on the orchestrator off the UI
// goroutine.
func runTurn(ctx context.Context, orchestrator *assistant.Orchestrator, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := orchestrator.Respond(ctx, question)
		return turnDoneMsg{answer: answer, err: err}
	}
}

func (model ChatModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(message, model.keys.Quit):
			if model.turnCancel != nil {
				model.turnCancel()
			}
			return model, tea.Quit

		case key.Matches(message, model.keys.CancelTurn):
			if model.busy && model.turnCancel != nil {
				model.turnCancel()
				return model, nil
			}
			// Esc when idle clears the input line.
			model.input.Reset()
			return model, nil

		case key.Matches(message, model.keys.Submit):
			return model.submit()

		case key.Matches(message, model.keys.PageUp),
			key.Matches(message, model.keys.PageDown):
			var cmd tea.Cmd
			model.viewport, cmd = model.viewport.Update(message)
			return model, cmd

		default:
			var cmd tea.Cmd
			model.input, cmd = model.input.Update(message)
			return model, cmd
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		model.viewport, cmd = model.viewport.Update(message)
		return model, cmd

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.viewport.Width = message.Width
		model.viewport.Height = message.Height - chatChromeLines
		if model.viewport.Height < 1 {
			model.viewport.Height = 1
		}
		model.input.Width = message.Width - lipgloss.Width(model.input.Prompt) - 1
		model.refreshTranscript()

	case deltaMsg:
		if model.busy {
			model.live += message.text
			model.refreshTranscript()
		}
		return model, waitForDelta(model.deltas)

	case SessionLabelMsg:
		model.sessionID = message.ID

	case turnDoneMsg:
		return model.finishTurn(message)

	case spinner.TickMsg:
		if model.busy {
			var cmd tea.Cmd
			model.spinner, cmd = model.spinner.Update(message)
			return model, cmd
		}
	}

	return model, nil
}

// submit starts a turn with the typed question. Ignored while a turn
// is already in flight or when the input is blank.
func (model ChatModel) submit() (tea.Model, tea.Cmd) {
	if model.busy {
		return model, nil
	}
	question := strings.TrimSpace(model.input.Value())
	if question == "" {
		return model, nil
	}

	model.entries = append(model.entries, chatEntry{kind: entryUser, text: question})
	model.input.Reset()
	model.busy = true
	model.live = ""

	ctx, cancel := context.WithCancel(model.parent)
	model.turnCancel = cancel

	if model.onTurnStart != nil {
		model.onTurnStart(question)
	}
	model.refreshTranscript()
	return model, tea.Batch(
		runTurn(ctx, model.orchestrator, question),
		model.spinner.Tick,
	)
}

// finishTurn lands a completed turn in the transcript. The answer
// text from the result replaces the streamed preview; deltas dropped
// under backpressure make the preview lossy but never the answer.
func (model ChatModel) finishTurn(message turnDoneMsg) (tea.Model, tea.Cmd) {
	model.busy = false
	model.live = ""
	if model.turnCancel != nil {
		model.turnCancel()
		model.turnCancel = nil
	}

	if message.err != nil {
		model.entries = append(model.entries, chatEntry{
			kind: entryError,
			text: message.err.Error(),
		})
		model.refreshTranscript()
		if model.onTurnError != nil {
			model.onTurnError(message.err)
		}
		return model, nil
	}

	entry := chatEntry{
		kind:    entryAssistant,
		text:    message.answer.Text,
		queries: message.answer.Queries,
	}
	for _, document := range message.answer.Documents {
		entry.sources = append(entry.sources, sourceRef{
			source: document.Source,
			score:  document.Score,
		})
	}
	model.entries = append(model.entries, entry)
	model.refreshTranscript()

	if model.onTurn != nil {
		model.onTurn(message.answer)
	}
	return model, nil
}

// refreshTranscript re-renders the scrollback into the viewport and
// follows the tail.
func (model *ChatModel) refreshTranscript() {
	if !model.ready {
		return
	}
	model.viewport.SetContent(model.renderTranscript())
	model.viewport.GotoBottom()
}

func (model *ChatModel) renderTranscript() string {
	width := model.width
	if width < 20 {
		width = 20
	}

	var blocks []string
	if len(model.entries) == 0 && !model.busy {
		welcome := lipgloss.NewStyle().Foreground(model.theme.FaintText)
		blocks = append(blocks, welcome.Render("ask a question to get started"))
	}

	for _, entry := range model.entries {
		blocks = append(blocks, model.renderEntry(entry, width))
	}

	if model.busy && model.live != "" {
		blocks = append(blocks, model.renderAnswerText(model.live, width))
	}

	return strings.Join(blocks, "\n\n")
}

func (model *ChatModel) renderEntry(entry chatEntry, width int) string {
	switch entry.kind {
	case entryUser:
		marker := lipgloss.NewStyle().Foreground(model.theme.Accent).Bold(true).Render("❯ ")
		text := lipgloss.NewStyle().Foreground(model.theme.NormalText).Bold(true).
			Render(entry.text)
		return ansi.Wrap(marker+text, width, wrapBreakpoints)

	case entryError:
		label := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Bold(true).Render("error: ")
		text := lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(entry.text)
		return ansi.Wrap(label+text, width, wrapBreakpoints)

	default:
		block := model.renderAnswerText(entry.text, width)
		if annotation := model.renderSources(entry, width); annotation != "" {
			block += "\n" + annotation
		}
		return block
	}
}

func (model *ChatModel) renderAnswerText(text string, width int) string {
	if model.markdown {
		return RenderMarkdown(text, model.theme, width)
	}
	styled := lipgloss.NewStyle().Foreground(model.theme.NormalText).Render(text)
	return ansi.Wrap(styled, width, wrapBreakpoints)
}

// renderSources annotates an answer with the retrieval queries that
// grounded it and the documents they surfaced.
func (model *ChatModel) renderSources(entry chatEntry, width int) string {
	if len(entry.queries) == 0 && len(entry.sources) == 0 {
		return ""
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)

	var lines []string
	if len(entry.queries) > 0 {
		lines = append(lines, faint.Render("searched: "+strings.Join(entry.queries, " · ")))
	}
	for index, source := range entry.sources {
		label := fmt.Sprintf("  [%d] %s (%.2f)", index+1, source.source, source.score)
		lines = append(lines, faint.Render(ansi.Truncate(label, width, "…")))
	}
	return strings.Join(lines, "\n")
}

func (model ChatModel) View() string {
	if !model.ready {
		return ""
	}
	return model.viewport.View() + "\n" +
		model.renderStatusBar() + "\n" +
		model.input.View()
}

// renderStatusBar composes the one-line status strip: session label,
// model name, history depth, and estimated context size, with the
// activity indicator on the right while a turn runs.
func (model ChatModel) renderStatusBar() string {
	bar := lipgloss.NewStyle().
		Background(model.theme.StatusBackground).
		Foreground(model.theme.StatusForeground)

	parts := []string{"docent"}
	if model.sessionID != "" {
		parts = append(parts, model.sessionID)
	}
	if model.modelName != "" {
		parts = append(parts, model.modelName)
	}

	transcript := model.orchestrator.Transcript()
	parts = append(parts, fmt.Sprintf("history %d/%d", transcript.Len(), transcript.MaxTurns()))
	if model.estimator != nil {
		estimate := model.estimator.EstimateTokens(transcript.Messages())
		parts = append(parts, "~"+formatTokenCount(estimate)+" tok")
	}

	left := " " + strings.Join(parts, " · ")

	right := ""
	if model.busy {
		right = model.spinner.View() + " thinking "
	}

	gap := model.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		left = ansi.Truncate(left, model.width-lipgloss.Width(right)-1, "…")
		gap = 1
	}
	return bar.Width(model.width).Render(left + strings.Repeat(" ", gap) + right)
}

// formatTokenCount renders a token count compactly: 812, 8.1k, 131k.
func formatTokenCount(tokens int) string {
	switch {
	case tokens >= 10000:
		return fmt.Sprintf("%dk", tokens/1000)
	case tokens >= 1000:
		return fmt.Sprintf("%.1fk", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}
