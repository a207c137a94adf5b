// Package models holds the state rendered by the progress view.
package models

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
)

// EntryKind identifies what a log entry shows.
type EntryKind string

const (
	EntryModel     EntryKind = "model"
	EntryTool      EntryKind = "tool"
	EntryRetry     EntryKind = "retry"
	EntryMalformed EntryKind = "malformed"
)

// Entry is one line group in the investigation log.
type Entry struct {
	Kind    EntryKind
	Title   string
	Body    string
	Success bool
}

// State is everything the view needs.
type State struct {
	Title string

	Width  int
	Height int

	Viewport viewport.Model
	Spinner  spinner.Model
	DotCount int

	// StatusPhase is one of thinking, executing, retrying, done, failed.
	StatusPhase   string
	StatusMessage string

	Entries     []Entry
	PendingTool string
	Iteration   int
	ToolCalls   int
	Done        bool
	Failed      bool
	Report      string
}
