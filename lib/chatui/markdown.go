// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// wrapBreakpoints are the characters ansi.Wrap may break a long word
// at, in addition to spaces.
const wrapBreakpoints = " ,.;-+|"

// answerParser is initialized once and reused: the parser
// configuration never changes, and a goldmark parser is safe to share
// because each Parse call builds its own state.
var (
	answerParser     goldmark.Markdown
	answerParserOnce sync.Once
)

func parser() goldmark.Markdown {
	answerParserOnce.Do(func() {
		answerParser = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return answerParser
}

// RenderMarkdown renders markdown as styled terminal text wrapped to
// width. Soft line breaks inside paragraphs become spaces, so text the
// model hard-wrapped reflows cleanly at the actual terminal width.
// Structural elements (code fences, lists, blockquotes, tables) keep
// their shape.
func RenderMarkdown(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))

	// Rendering always targets a terminal, so the color profile is
	// pinned to ANSI256 instead of auto-detected; detection inside
	// tests and pipes would silently strip all styling. Both settings
	// are needed: lipgloss re-detects from the environment unless
	// SetColorProfile pins an explicit profile on the renderer.
	styles := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)

	writer := &markdownWriter{
		source: source,
		theme:  theme,
		width:  width,
		styles: styles,
	}
	ast.Walk(document, writer.walk)

	return strings.TrimRight(writer.output.String(), "\n")
}

// markdownWriter walks a goldmark AST and writes styled terminal
// text. It is a direct ast.Walk rather than a goldmark renderer
// because terminal output needs accumulate-then-wrap semantics: the
// inline content of a paragraph collects in a buffer and word-wraps
// as one unit when the paragraph closes.
type markdownWriter struct {
	source []byte
	theme  Theme
	width  int
	styles *lipgloss.Renderer

	output strings.Builder

	// inline accumulates styled fragments inside the current
	// paragraph, heading, or list item until the block closes.
	inline strings.Builder

	// Prefix stack for nested containers (blockquotes, list
	// continuations). linePrefix and prefixWidth mirror the stack so
	// per-line work stays cheap.
	prefixes    []blockPrefix
	linePrefix  string
	prefixWidth int

	// bullet replaces the line prefix for the next emitted line only.
	bullet string

	// Inline style depth counters. Counters rather than booleans so
	// nested emphasis unwinds correctly.
	bold          int
	italic        int
	strikethrough int

	lists []listLevel

	// trailingNewlines tracks how many newlines end the output so
	// blank-line separation between blocks stays exact.
	trailingNewlines int
}

type blockPrefix struct {
	text  string
	width int
}

type listLevel struct {
	ordered bool
	number  int
	tight   bool
}

func (writer *markdownWriter) style() lipgloss.Style {
	return writer.styles.NewStyle()
}

// contentWidth is the wrap width after subtracting nesting prefixes,
// clamped so pathological nesting cannot make wrapping degenerate.
func (writer *markdownWriter) contentWidth() int {
	width := writer.width - writer.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (writer *markdownWriter) pushPrefix(text string) {
	width := lipgloss.Width(text)
	writer.prefixes = append(writer.prefixes, blockPrefix{text: text, width: width})
	writer.linePrefix += text
	writer.prefixWidth += width
}

func (writer *markdownWriter) popPrefix() {
	if len(writer.prefixes) == 0 {
		return
	}
	top := writer.prefixes[len(writer.prefixes)-1]
	writer.prefixes = writer.prefixes[:len(writer.prefixes)-1]
	writer.linePrefix = writer.linePrefix[:len(writer.linePrefix)-len(top.text)]
	writer.prefixWidth -= top.width
}

func (writer *markdownWriter) inTightList() bool {
	if len(writer.lists) == 0 {
		return false
	}
	return writer.lists[len(writer.lists)-1].tight
}

func (writer *markdownWriter) write(s string) {
	if s == "" {
		return
	}
	writer.output.WriteString(s)

	trailing := 0
	onlyNewlines := true
	for index := len(s) - 1; index >= 0; index-- {
		if s[index] != '\n' {
			onlyNewlines = false
			break
		}
		trailing++
	}
	if onlyNewlines {
		writer.trailingNewlines += trailing
	} else {
		writer.trailingNewlines = trailing
	}
}

func (writer *markdownWriter) endLine() {
	if writer.trailingNewlines < 1 {
		writer.write("\n")
	}
}

func (writer *markdownWriter) blankLine() {
	for writer.trailingNewlines < 2 {
		writer.write("\n")
	}
}

// takePrefix returns the prefix for the line about to be written: the
// pending bullet exactly once, the regular prefix otherwise.
func (writer *markdownWriter) takePrefix() string {
	if writer.bullet != "" {
		bullet := writer.bullet
		writer.bullet = ""
		return bullet
	}
	return writer.linePrefix
}

// prefixLines prepends the line prefix to every line of content, with
// the pending bullet on the first.
func (writer *markdownWriter) prefixLines(content string) string {
	lines := strings.Split(content, "\n")
	var result strings.Builder
	for index, line := range lines {
		if index == 0 {
			result.WriteString(writer.takePrefix())
		} else {
			result.WriteString(writer.linePrefix)
		}
		result.WriteString(line)
		if index < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

// flushInline wraps the accumulated inline content to the current
// width and applies prefixes. Resets the accumulator.
func (writer *markdownWriter) flushInline() string {
	content := writer.inline.String()
	writer.inline.Reset()
	if content == "" {
		return ""
	}
	wrapped := ansi.Wrap(content, writer.contentWidth(), wrapBreakpoints)
	return writer.prefixLines(wrapped)
}

// styledText renders a text fragment in the current inline style.
func (writer *markdownWriter) styledText(content string) string {
	style := writer.style().Foreground(writer.theme.NormalText)
	if writer.bold > 0 {
		style = style.Bold(true)
	}
	if writer.italic > 0 {
		style = style.Italic(true)
	}
	if writer.strikethrough > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// collectInline renders a node's children into a string without
// touching the caller's inline state.
func (writer *markdownWriter) collectInline(node ast.Node) string {
	savedInline := writer.inline.String()
	savedBold := writer.bold
	savedItalic := writer.italic
	savedStrikethrough := writer.strikethrough

	writer.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, writer.walk)
	}
	result := writer.inline.String()

	writer.inline.Reset()
	writer.inline.WriteString(savedInline)
	writer.bold = savedBold
	writer.italic = savedItalic
	writer.strikethrough = savedStrikethrough

	return result
}

// highlight syntax-colors code with chroma using the theme's style.
// Unknown languages and highlighter failures fall back to faint plain
// text.
func (writer *markdownWriter) highlight(code, language string) string {
	if language == "" {
		return writer.style().Foreground(writer.theme.FaintText).Render(code)
	}
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", writer.theme.CodeStyle); err != nil {
		return writer.style().Foreground(writer.theme.FaintText).Render(code)
	}
	return buffer.String()
}

func (writer *markdownWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {

	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			writer.inline.Reset()
		} else if flushed := writer.flushInline(); flushed != "" {
			writer.write(flushed)
			writer.endLine()
			if !writer.inTightList() {
				writer.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			writer.inline.Reset()
		} else {
			writer.closeHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := node.(*ast.FencedCodeBlock)
			writer.writeCode(writer.blockText(node), string(block.Language(writer.source)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			writer.writeCode(writer.blockText(node), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			writer.pushPrefix("│ ")
		} else {
			writer.popPrefix()
			writer.blankLine()
		}

	case ast.KindList:
		if entering {
			writer.enterList(node.(*ast.List))
		} else {
			writer.leaveList()
		}

	case ast.KindListItem:
		if entering {
			writer.enterListItem()
		} else {
			writer.leaveListItem()
		}

	case ast.KindThematicBreak:
		if entering {
			writer.writeRule()
		}

	case ast.KindHTMLBlock:
		if entering {
			stripped := strings.TrimSpace(stripTags(writer.blockText(node)))
			if stripped != "" {
				faint := writer.style().Foreground(writer.theme.FaintText)
				writer.write(writer.prefixLines(faint.Render(stripped)))
				writer.endLine()
				writer.blankLine()
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindText:
		if entering {
			writer.writeText(node.(*ast.Text))
		}

	case ast.KindString:
		if entering {
			writer.inline.WriteString(writer.styledText(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		writer.toggleEmphasis(node.(*ast.Emphasis), entering)

	case ast.KindCodeSpan:
		if entering {
			writer.writeCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			writer.writeLink(node.(*ast.Link))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(writer.source))
			writer.inline.WriteString(writer.style().Foreground(writer.theme.FaintText).Render(url))
		}

	case ast.KindImage:
		if entering {
			writer.writeImage(node.(*ast.Image))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindRawHTML:
		if entering {
			writer.writeRawHTML(node.(*ast.RawHTML))
		}

	case extast.KindStrikethrough:
		if entering {
			writer.strikethrough++
		} else {
			writer.strikethrough--
		}

	case extast.KindTable:
		if entering {
			writer.writeTable(node.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				check := writer.style().Foreground(writer.theme.Accent)
				writer.inline.WriteString(check.Render("[x]") + " ")
			} else {
				writer.inline.WriteString(writer.styledText("[ ] "))
			}
		}
	}

	return ast.WalkContinue, nil
}

// blockText joins the source lines of a block node.
func (writer *markdownWriter) blockText(node ast.Node) string {
	var content strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		content.Write(segment.Value(writer.source))
	}
	return content.String()
}

func (writer *markdownWriter) closeHeading(heading *ast.Heading) {
	// The heading carries its own style, so inline styling collected
	// while walking its children is stripped before restyling.
	content := ansi.Strip(writer.inline.String())
	writer.inline.Reset()
	if content == "" {
		return
	}

	style := writer.style().Bold(true)
	if heading.Level <= 2 {
		style = style.Foreground(writer.theme.Accent)
	} else {
		style = style.Foreground(writer.theme.NormalText)
	}

	wrapped := ansi.Wrap(style.Render(content), writer.contentWidth(), wrapBreakpoints)
	writer.blankLine()
	writer.write(writer.prefixLines(wrapped))
	writer.endLine()
	writer.blankLine()
}

func (writer *markdownWriter) writeCode(code, language string) {
	highlighted := writer.highlight(code, language)
	writer.blankLine()
	for _, line := range strings.Split(strings.TrimRight(highlighted, "\n"), "\n") {
		writer.write(writer.takePrefix() + line)
		writer.endLine()
	}
	writer.blankLine()
}

func (writer *markdownWriter) enterList(list *ast.List) {
	number := 0
	if list.IsOrdered() {
		number = list.Start
	}
	writer.lists = append(writer.lists, listLevel{
		ordered: list.IsOrdered(),
		number:  number,
		tight:   list.IsTight,
	})
}

func (writer *markdownWriter) leaveList() {
	if len(writer.lists) > 0 {
		writer.lists = writer.lists[:len(writer.lists)-1]
	}
	if !writer.inTightList() {
		writer.blankLine()
	}
}

func (writer *markdownWriter) enterListItem() {
	if len(writer.lists) == 0 {
		return
	}
	top := &writer.lists[len(writer.lists)-1]

	var marker string
	if top.ordered {
		marker = fmt.Sprintf("%d. ", top.number)
		top.number++
	} else {
		marker = "• "
	}

	// Continuation lines indent to the marker's visible width, which
	// differs from its byte length for the bullet glyph.
	continuation := strings.Repeat(" ", lipgloss.Width(marker))

	// The bullet stands in for the whole prefix on the item's first
	// line, so it carries the current prefix itself.
	writer.bullet = writer.linePrefix + marker
	writer.pushPrefix(continuation)
}

func (writer *markdownWriter) leaveListItem() {
	writer.popPrefix()
	if writer.inTightList() {
		writer.endLine()
	} else {
		writer.blankLine()
	}
}

func (writer *markdownWriter) writeRule() {
	rule := strings.Repeat("─", writer.contentWidth())
	style := writer.style().Foreground(writer.theme.BorderColor)
	writer.blankLine()
	writer.write(writer.prefixLines(style.Render(rule)))
	writer.endLine()
	writer.blankLine()
}

func (writer *markdownWriter) writeText(node *ast.Text) {
	value := string(node.Segment.Value(writer.source))
	writer.inline.WriteString(writer.styledText(value))

	if node.SoftLineBreak() {
		// Soft breaks become spaces so the paragraph reflows at the
		// terminal's width instead of the model's.
		writer.inline.WriteString(" ")
	}
	if node.HardLineBreak() {
		writer.inline.WriteString("\n")
	}
}

func (writer *markdownWriter) toggleEmphasis(node *ast.Emphasis, entering bool) {
	delta := 1
	if !entering {
		delta = -1
	}
	if node.Level >= 2 {
		writer.bold += delta
	} else {
		writer.italic += delta
	}
}

func (writer *markdownWriter) writeCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch child := child.(type) {
		case *ast.Text:
			code.Write(child.Segment.Value(writer.source))
		case *ast.String:
			code.Write(child.Value)
		}
	}
	style := writer.style().Foreground(writer.theme.FaintText)
	writer.inline.WriteString(style.Render(code.String()))
}

func (writer *markdownWriter) writeLink(node *ast.Link) {
	// collectInline already styles the link text; writing it directly
	// avoids styling twice.
	display := writer.collectInline(node)
	writer.inline.WriteString(display)
	if url := string(node.Destination); url != "" {
		style := writer.style().Foreground(writer.theme.FaintText)
		writer.inline.WriteString(" " + style.Render("("+url+")"))
	}
}

func (writer *markdownWriter) writeImage(node *ast.Image) {
	faint := writer.style().Foreground(writer.theme.FaintText)
	writer.inline.WriteString(faint.Render("[" + writer.collectInline(node) + "]"))
	if url := string(node.Destination); url != "" {
		writer.inline.WriteString(" " + faint.Render("("+url+")"))
	}
}

func (writer *markdownWriter) writeRawHTML(node *ast.RawHTML) {
	var html strings.Builder
	for index := 0; index < node.Segments.Len(); index++ {
		segment := node.Segments.At(index)
		html.Write(segment.Value(writer.source))
	}
	if stripped := stripTags(html.String()); stripped != "" {
		faint := writer.style().Foreground(writer.theme.FaintText)
		writer.inline.WriteString(faint.Render(stripped))
	}
}

const tableCellGap = "  "

func (writer *markdownWriter) writeTable(table *extast.Table) {
	var header []string
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			header = writer.collectRow(child)
		case extast.KindTableRow:
			rows = append(rows, writer.collectRow(child))
		}
	}

	columns := len(header)
	if columns == 0 && len(rows) > 0 {
		columns = len(rows[0])
	}
	if columns == 0 {
		return
	}

	widths := writer.columnWidths(header, rows, columns)

	writer.blankLine()
	if len(header) > 0 {
		bold := writer.style().Bold(true).Foreground(writer.theme.NormalText)
		writer.write(writer.takePrefix() + writer.formatRow(header, widths, table.Alignments, bold))
		writer.endLine()

		parts := make([]string, len(widths))
		for index, width := range widths {
			parts[index] = strings.Repeat("─", width)
		}
		border := writer.style().Foreground(writer.theme.BorderColor)
		writer.write(writer.linePrefix + border.Render(strings.Join(parts, tableCellGap)))
		writer.endLine()
	}
	for _, row := range rows {
		writer.write(writer.linePrefix + writer.formatRow(row, widths, table.Alignments, writer.style()))
		writer.endLine()
	}
	writer.blankLine()
}

func (writer *markdownWriter) collectRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, writer.collectInline(cell))
		}
	}
	return cells
}

// columnWidths sizes columns to their widest cell, then shrinks
// proportionally when the table overflows the available width. Three
// cells is the floor per column.
func (writer *markdownWriter) columnWidths(header []string, rows [][]string, columns int) []int {
	widths := make([]int, columns)
	measure := func(cells []string) {
		for index, cell := range cells {
			if index < columns {
				if width := lipgloss.Width(cell); width > widths[index] {
					widths[index] = width
				}
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	total := len(tableCellGap) * (columns - 1)
	for _, width := range widths {
		total += width
	}
	available := writer.contentWidth()
	if total <= available {
		return widths
	}

	usable := available - len(tableCellGap)*(columns-1)
	if usable < columns*3 {
		usable = columns * 3
	}
	remaining := usable
	for index := range widths {
		widths[index] = (widths[index] * usable) / total
		if widths[index] < 3 {
			widths[index] = 3
		}
		remaining -= widths[index]
	}

	// The floor can push the sum past the target; take the excess
	// back from the widest columns.
	for remaining < 0 {
		widest := -1
		for index, width := range widths {
			if width > 3 && (widest < 0 || width > widths[widest]) {
				widest = index
			}
		}
		if widest < 0 {
			break
		}
		widths[widest]--
		remaining++
	}
	return widths
}

func (writer *markdownWriter) formatRow(
	cells []string,
	widths []int,
	alignments []extast.Alignment,
	base lipgloss.Style,
) string {
	parts := make([]string, 0, len(widths))
	for index, width := range widths {
		var cell string
		if index < len(cells) {
			cell = cells[index]
		}

		visible := lipgloss.Width(cell)
		if visible > width {
			cell = ansi.Truncate(cell, width, "…")
			visible = lipgloss.Width(cell)
		}
		padding := width - visible
		if padding < 0 {
			padding = 0
		}

		var alignment extast.Alignment
		if index < len(alignments) {
			alignment = alignments[index]
		}
		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", padding) + cell
		case extast.AlignCenter:
			left := padding / 2
			cell = strings.Repeat(" ", left) + cell + strings.Repeat(" ", padding-left)
		default:
			cell += strings.Repeat(" ", padding)
		}
		parts = append(parts, cell)
	}
	return base.Render(strings.Join(parts, tableCellGap))
}

// stripTags drops HTML tags, keeping only text content. Models
// occasionally emit markup like <br> inside otherwise-markdown
// answers.
func stripTags(html string) string {
	var result strings.Builder
	inTag := false
	for _, character := range html {
		switch {
		case character == '<':
			inTag = true
		case character == '>':
			inTag = false
		case !inTag:
			result.WriteRune(character)
		}
	}
	return result.String()
}
