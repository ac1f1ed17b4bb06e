// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui implements the interactive terminal interface for
// docent conversations. Built on bubbletea (Elm architecture), it
// provides two models: [ChatModel], the conversation view with a
// scrollback viewport, streamed answer previews, and a status bar;
// and [PickerModel], the fuzzy-filtered session chooser used when
// resuming without an explicit session ID.
//
// Turns run off the UI goroutine as bubbletea commands. The
// orchestrator streams answer text through the channel half of
// [DeltaSink]; the model drains it with a blocking command that
// re-arms after every delta, so the preview renders as chunks arrive
// without the UI ever waiting on the network.
//
// Data flow:
//
//	[assistant.Orchestrator]
//	        | (tea.Cmd + delta channel)
//	    [ChatModel] <- bubbletea event loop
//	        |
//	  [terminal output]
//
// Answers render through [RenderMarkdown], a goldmark-based terminal
// renderer that reflows paragraphs to the live terminal width and
// syntax-highlights fenced code. Fuzzy matching wraps fzf's algorithm
// (see [FuzzyMatch]) and is shared by the picker's filter.
package chatui
