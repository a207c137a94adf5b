package services

import (
	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer renders markdown for a terminal of the given width.
type MarkdownRenderer interface {
	Render(content string, width int) (string, error)
}

// GlamourRenderer renders markdown with glamour using a fixed style.
type GlamourRenderer struct {
	// Style is a glamour standard style name; empty means "dark".
	Style string
}

func (g GlamourRenderer) Render(content string, width int) (string, error) {
	style := g.Style
	if style == "" {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}

// RenderMarkdown renders content, clamping width to a usable minimum.
func RenderMarkdown(content string, width int, renderer MarkdownRenderer) (string, error) {
	if width < 20 {
		width = 20
	}
	return renderer.Render(content, width)
}
